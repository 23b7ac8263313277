package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/exportprofiles/internal/app"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
	"github.com/shrimpsizemoose/exportprofiles/internal/store/sqlite"
	"github.com/shrimpsizemoose/exportprofiles/migrations"
)

const testConfig = `
[server]
port = ":9999"

[api]
required_headers = [{ name = "X-Client", value = "gradebook" }]
`

func setupServer(t *testing.T) (*httptest.Server, *app.Service) {
	s, err := sqlite.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations(migrations.FS))

	_, err = s.DB.Exec(`
		INSERT INTO courses (id, short_name, full_name) VALUES (1, 'CS101', 'Intro');
		INSERT INTO grade_items (id, course_id, item_name, sort_order, hidden, grade_max) VALUES
			(10, 1, 'Quiz 1', 1, 0, 10),
			(11, 1, 'Secret', 2, 1, 10);
		INSERT INTO enrolments (course_id, user_id, user_name, email) VALUES (1, 501, 'ann', 'ann@example.com');
		INSERT INTO grades (item_id, user_id, final_grade) VALUES (10, 501, 7);
	`)
	require.NoError(t, err)

	config, err := app.ParseConfig("test.toml", []byte(testConfig))
	require.NoError(t, err)
	auth, err := app.NewAuth(config)
	require.NoError(t, err)

	service := app.NewServiceWith(config, s, auth)

	mux := http.NewServeMux()
	NewProfileHandler(service).Register(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		service.Close()
	})
	return server, service
}

func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Client", "gradebook")
	req.Header.Set("X-User-Id", "101")
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
		} else {
			req.Header.Set(k, v)
		}
	}

	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type listResponse struct {
	Course models.Course `json:"course"`
	Form   struct {
		Choices []struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"choices"`
		Selected string `json:"selected"`
		Items    []struct {
			ID       int64 `json:"id"`
			Included bool  `json:"included"`
		} `json:"items"`
		Options     models.ExportOptions `json:"options"`
		SaveVisible bool                 `json:"save_visible"`
	} `json:"form"`
}

func TestListProfiles(t *testing.T) {
	server, _ := setupServer(t)

	t.Run("fresh course", func(t *testing.T) {
		resp := do(t, "GET", server.URL+"/api/v1/courses/1/profiles", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body listResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "CS101", body.Course.ShortName)
		assert.Equal(t, "e", body.Form.Selected)
		require.Len(t, body.Form.Choices, 4)
		assert.Equal(t, "e", body.Form.Choices[0].Value)
		assert.Len(t, body.Form.Items, 2, "auth disabled grants every capability")
	})

	t.Run("selector query", func(t *testing.T) {
		resp := do(t, "GET", server.URL+"/api/v1/courses/1/profiles?selector=d", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body listResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "d", body.Form.Selected)
		for _, item := range body.Form.Items {
			assert.False(t, item.Included)
		}
	})

	t.Run("status mapping", func(t *testing.T) {
		testCases := []struct {
			name     string
			url      string
			headers  map[string]string
			expected int
		}{
			{"unknown course", "/api/v1/courses/42/profiles", nil, http.StatusNotFound},
			{"malformed course", "/api/v1/courses/abc/profiles", nil, http.StatusBadRequest},
			{"malformed selector", "/api/v1/courses/1/profiles?selector=z", nil, http.StatusBadRequest},
			{"missing client header", "/api/v1/courses/1/profiles", map[string]string{"X-Client": ""}, http.StatusForbidden},
			{"missing user", "/api/v1/courses/1/profiles", map[string]string{"X-User-Id": ""}, http.StatusUnauthorized},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				resp := do(t, "GET", server.URL+tc.url, "", tc.headers)
				assert.Equal(t, tc.expected, resp.StatusCode)
			})
		}
	})
}

func TestExportActions(t *testing.T) {
	server, service := setupServer(t)
	url := server.URL + "/api/v1/courses/1/export"
	ctx := context.Background()
	owner := models.Owner{UserID: 101, CourseID: 1}

	t.Run("save_new redirects to the listing", func(t *testing.T) {
		resp := do(t, "POST", url, `{"action":"save_new","selector":"a","name":"weekly","items":{"10":true},"options":{"fileformat":2,"real":true,"decimals":1,"separator":1}}`, nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/api/v1/courses/1/profiles", resp.Header.Get("Location"))

		id, ok, err := service.Store.GetProfileIDByName(ctx, owner, "weekly")
		require.NoError(t, err)
		assert.True(t, ok)

		states, _, err := service.Store.GetItemStates(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{10: 1}, states)
	})

	t.Run("save_new validates the name", func(t *testing.T) {
		resp := do(t, "POST", url, `{"action":"save_new","selector":"a","name":"a name that is way too long"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = do(t, "POST", url, `{"action":"save_new","selector":"a"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("export streams the file", func(t *testing.T) {
		resp := do(t, "POST", url, `{"action":"export","selector":"c","items":{"10":true},"options":{"fileformat":2,"real":true,"decimals":0,"separator":3}}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="CS101 Grades.txt"`, resp.Header.Get("Content-Disposition"))

		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(buf.String(), "Name;Email address;Quiz 1 (Real);"))
		assert.Contains(t, buf.String(), "ann;ann@example.com;7;")
	})

	t.Run("remove asks for confirmation", func(t *testing.T) {
		id, _, err := service.Store.GetProfileIDByName(ctx, owner, "weekly")
		require.NoError(t, err)

		resp := do(t, "POST", url, `{"action":"remove","selector":"`+models.SelectProfile(id).String()+`"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Are you sure that you want to delete the profile weekly?", body["confirm"])

		del := do(t, "POST", server.URL+body["delete_url"].(string), "", nil)
		assert.Equal(t, http.StatusSeeOther, del.StatusCode)

		_, ok, err := service.Store.GetProfileIDByName(ctx, owner, "weekly")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Last State survives a delete request", func(t *testing.T) {
		id, ok, err := service.Store.GetProfileIDByName(ctx, owner, models.LastStateName)
		require.NoError(t, err)
		require.True(t, ok)

		resp := do(t, "POST", server.URL+"/api/v1/courses/1/profiles/"+models.SelectProfile(id).String()+"/delete", "", nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		_, ok, err = service.Store.GetProfileIDByName(ctx, owner, models.LastStateName)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bad requests", func(t *testing.T) {
		for _, body := range []string{
			`not json`,
			`{"action":"publish","selector":"a"}`,
			`{"action":"export","selector":"x"}`,
			`{"action":"export","selector":"a","options":{"decimals":9}}`,
		} {
			resp := do(t, "POST", url, body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		}
	})
}

func TestCourseDeletedHook(t *testing.T) {
	server, service := setupServer(t)
	ctx := context.Background()

	_, err := service.Store.SaveProfile(ctx, models.Owner{UserID: 101, CourseID: 1}, store.SaveRequest{Last: true, ProfileName: "one"})
	require.NoError(t, err)
	_, err = service.Store.SaveProfile(ctx, models.Owner{UserID: 102, CourseID: 1}, store.SaveRequest{Last: true, ProfileName: "two"})
	require.NoError(t, err)

	resp := do(t, "POST", server.URL+"/api/v1/hooks/course-deleted", `{"course_id":1}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(2), body["deleted"])

	resp = do(t, "POST", server.URL+"/api/v1/hooks/course-deleted", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
