package settings

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/prefsets/internal/kv"
)

func TestNewSetCodecSelection(t *testing.T) {
	native := kv.NewMemory()
	scalar := kv.NewMemory(kv.WithoutStringSets())

	tests := []struct {
		name    string
		store   kv.Store
		enc     SetEncoding
		want    SetEncoding
		wantErr error
	}{
		{"auto on native store", native, EncodingAuto, EncodingNative, nil},
		{"auto on scalar store", scalar, EncodingAuto, EncodingJSON, nil},
		{"empty means auto", scalar, "", EncodingJSON, nil},
		{"forced json", native, EncodingJSON, EncodingJSON, nil},
		{"native on scalar store", scalar, EncodingNative, "", ErrNativeSetsUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewSetCodec(tt.store, tt.enc, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, codec.Encoding())
		})
	}
}

func TestParseSetEncoding(t *testing.T) {
	for _, s := range []string{"", "auto", "native", "json"} {
		_, err := ParseSetEncoding(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseSetEncoding("xml")
	assert.Error(t, err)
}

func TestStringSetRoundTrip(t *testing.T) {
	for _, enc := range []SetEncoding{EncodingNative, EncodingJSON} {
		t.Run(string(enc), func(t *testing.T) {
			store := kv.NewMemory()
			codec, err := NewSetCodec(store, enc, nil)
			require.NoError(t, err)

			e := kv.NewEditor(store)
			codec.PutStringSet(e, "tags", []string{"b", "a"})
			require.NoError(t, e.Commit())

			got, err := codec.GetStringSet(store, "tags", []string{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, got)

			raw, ok, err := store.Get("tags")
			require.NoError(t, err)
			require.True(t, ok)
			if enc == EncodingJSON {
				assert.Equal(t, kv.KindString, raw.Kind)
				assert.Equal(t, `["a","b"]`, raw.Str)
			} else {
				assert.Equal(t, kv.KindStringSet, raw.Kind)
			}
		})
	}
}

func TestJSONSetsMalformedReturnsDefault(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	store := kv.NewMemory(kv.WithoutStringSets())
	require.NoError(t, kv.NewEditor(store).Put("tags", kv.String("[not json")).Commit())

	codec, err := NewSetCodec(store, EncodingAuto, logger)
	require.NoError(t, err)

	def := []string{"fallback"}
	got, err := codec.GetStringSet(store, "tags", def)
	require.NoError(t, err)
	assert.Equal(t, def, got)
	assert.Contains(t, logs.String(), "invalid string set encoding")
	assert.Contains(t, logs.String(), "key=tags")
}

func TestJSONSetsEmptyStringIsAbsent(t *testing.T) {
	store := kv.NewMemory(kv.WithoutStringSets())
	require.NoError(t, kv.NewEditor(store).Put("tags", kv.String("")).Commit())

	codec, _ := NewSetCodec(store, EncodingJSON, nil)
	got, err := codec.GetStringSet(store, "tags", []string{"d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, got)
}

func TestJSONSetsCoercesNonStringItems(t *testing.T) {
	store := kv.NewMemory(kv.WithoutStringSets())
	require.NoError(t, kv.NewEditor(store).Put("tags", kv.String(`["x", 3, null, true]`)).Commit())

	codec, _ := NewSetCodec(store, EncodingJSON, nil)
	got, err := codec.GetStringSet(store, "tags", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "true", "x"}, got)
}

func TestNativeSetsKindMismatch(t *testing.T) {
	store := kv.NewMemory()
	require.NoError(t, kv.NewEditor(store).Put("tags", kv.Int(3)).Commit())

	codec, _ := NewSetCodec(store, EncodingNative, nil)
	_, err := codec.GetStringSet(store, "tags", nil)

	var kerr *kv.KindError
	require.True(t, errors.As(err, &kerr))
	assert.Equal(t, kv.KindInt, kerr.Got)
}

func TestFlatTypedGetters(t *testing.T) {
	store := kv.NewMemory()
	codec, _ := NewSetCodec(store, EncodingAuto, nil)
	f := NewFlat(store, codec)

	require.NoError(t, f.Edit().
		PutString("s", "v").
		PutInt("i", 7).
		PutLong("l", 1<<40).
		PutFloat("f", 2.5).
		PutBool("b", true).
		PutStringSet("set", []string{"z", "y"}).
		Commit())

	s, err := f.GetString("s", "")
	require.NoError(t, err)
	assert.Equal(t, "v", s)

	i, err := f.GetInt("i", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, i)

	l, err := f.GetLong("l", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), l)

	fl, err := f.GetFloat("f", 0)
	require.NoError(t, err)
	assert.Equal(t, float32(2.5), fl)

	b, err := f.GetBool("b", false)
	require.NoError(t, err)
	assert.True(t, b)

	set, err := f.GetStringSet("set", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, set)

	missing, err := f.GetInt("missing", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, missing)

	_, err = f.GetInt("s", 0)
	var kerr *kv.KindError
	assert.ErrorAs(t, err, &kerr)

	ok, err := f.Contains("s")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlatListen(t *testing.T) {
	store := kv.NewMemory()
	codec, _ := NewSetCodec(store, EncodingAuto, nil)
	f := NewFlat(store, codec)

	var got []string
	cancel := f.Listen(func(s Settings, key string) {
		assert.Same(t, f, s)
		got = append(got, key)
	})
	require.NoError(t, f.Edit().PutBool("dark", true).Commit())
	cancel()
	require.NoError(t, f.Edit().PutBool("dark", false).Commit())

	assert.Equal(t, []string{"dark"}, got)
}
