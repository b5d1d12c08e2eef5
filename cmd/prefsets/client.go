package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/prefsets/internal/api"
	"github.com/kalambet/prefsets/internal/config"
	"github.com/kalambet/prefsets/internal/kv"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token, err := config.GetAPIToken(cfg)
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is prefsets serve running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// healthy reports whether a server answers /health.
func (c *apiClient) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *apiClient) presets(ctx context.Context) (api.PresetList, error) {
	var out api.PresetList
	resp, err := c.get(ctx, "/presets")
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out)
}

func (c *apiClient) setActive(ctx context.Context, name string) error {
	resp, err := c.put(ctx, "/presets/active", api.NameRequest{Name: name})
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

func (c *apiClient) addPreset(ctx context.Context, name string) error {
	resp, err := c.post(ctx, "/presets", api.NameRequest{Name: name})
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

func (c *apiClient) removePreset(ctx context.Context, name string) error {
	resp, err := c.delete(ctx, "/presets/"+url.PathEscape(name))
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

func settingPath(name, key string) string {
	return "/presets/" + url.PathEscape(name) + "/settings/" + url.PathEscape(key)
}

func (c *apiClient) putSetting(ctx context.Context, name, key string, val kv.Value) error {
	raw, err := json.Marshal(val.Interface())
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}
	resp, err := c.put(ctx, settingPath(name, key), api.PutRequest{Type: val.Kind.String(), Value: raw})
	if err != nil {
		return err
	}
	var out api.Setting
	return decodeJSON(resp, &out)
}

func (c *apiClient) deleteSetting(ctx context.Context, name, key string) error {
	resp, err := c.delete(ctx, settingPath(name, key))
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

// watch streams events of one preset (the active one when name is empty)
// into fn until ctx is done or the server goes away.
func (c *apiClient) watch(ctx context.Context, name string, fn func(api.Event)) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/watch"
	if name != "" {
		u.RawQuery = url.Values{"preset": []string{name}}.Encode()
	}

	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("watch rejected: server returned %d", resp.StatusCode)
		}
		return fmt.Errorf("server not reachable, is prefsets serve running? (%w)", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		var ev api.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading watch stream: %w", err)
		}
		fn(ev)
	}
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
