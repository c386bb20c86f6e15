package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractStructureID_Header(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Structure-ID", "lyon_nord")
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractStructureID(c, "default"); got != "lyon_nord" {
		t.Errorf("expected lyon_nord, got %s", got)
	}
}

func TestExtractStructureID_JWTClaimWins(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Structure-ID", "from_header")
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("jwt_structure_id", "from_token")

	if got := extractStructureID(c, "default"); got != "from_token" {
		t.Errorf("expected from_token, got %s", got)
	}
}

func TestExtractStructureID_QueryParam(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?structure_id=annex", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractStructureID(c, "default"); got != "annex" {
		t.Errorf("expected annex, got %s", got)
	}
}

func TestExtractStructureID_Default(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractStructureID(c, "default"); got != "default" {
		t.Errorf("expected default, got %s", got)
	}
}

func TestStructureIDPattern(t *testing.T) {
	valid := []string{"default", "clinic_01", "A1"}
	for _, v := range valid {
		if !structureIDPattern.MatchString(v) {
			t.Errorf("expected %q to be valid", v)
		}
	}

	invalid := []string{"", "a-b", "x; DROP SCHEMA", "é"}
	for _, v := range invalid {
		if structureIDPattern.MatchString(v) {
			t.Errorf("expected %q to be rejected", v)
		}
	}
}

func TestCreateStructureSchema_InvalidID(t *testing.T) {
	err := CreateStructureSchema(context.Background(), nil, "bad-id", "")
	if err == nil {
		t.Error("expected error for invalid structure identifier")
	}
}

func TestConnFromContext_Empty(t *testing.T) {
	if conn := ConnFromContext(context.Background()); conn != nil {
		t.Error("expected nil connection for empty context")
	}
}

func TestStructureFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), StructureIDKey, "main")
	if got := StructureFromContext(ctx); got != "main" {
		t.Errorf("expected main, got %s", got)
	}
	if got := StructureFromContext(context.Background()); got != "" {
		t.Errorf("expected empty, got %s", got)
	}
}
