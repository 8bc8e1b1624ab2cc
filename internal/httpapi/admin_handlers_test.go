package httpapi

import (
	"net/http"
	"testing"

	"veloeats.org/internal/auth"
)

func TestImpersonationFlowOverHTTP(t *testing.T) {
	fix := newAPIFixture(t)
	fix.addAdmin(t, "adm", "ops@veloeats.kz", "correct horse", auth.AdminRoleSupport)
	fix.addUser(t, "cust", "user@veloeats.kz", "correct horse", auth.RoleCustomer)
	bearer := fix.bearerFor(t, "adm")

	startRR := doJSON(t, fix.handler, http.MethodPost, "/v1/admin/impersonation/start",
		`{"targetUserId":"cust","reason":"support ticket #42"}`, func(r *http.Request) {
			r.Header.Set("Authorization", bearer)
		})
	if startRR.Code != http.StatusCreated {
		t.Fatalf("start failed: %d %s", startRR.Code, startRR.Body.String())
	}
	session := decodeBody(t, startRR)
	if session["mode"] != "VIEW_ONLY" {
		t.Fatalf("mode must default to VIEW_ONLY: %v", session["mode"])
	}
	sessionID := session["id"].(string)

	// Чтение с заголовком сессии проходит.
	readRR := doJSON(t, fix.handler, http.MethodGet, "/v1/auth/me", "", func(r *http.Request) {
		r.Header.Set("Authorization", bearer)
		r.Header.Set(ImpersonationHeader, sessionID)
	})
	if readRR.Code != http.StatusOK {
		t.Fatalf("read under impersonation must pass: %d", readRR.Code)
	}

	// Запись в режиме VIEW_ONLY отклоняется до обработчика.
	writeRR := doJSON(t, fix.handler, http.MethodPost, "/v1/auth/logout", "", func(r *http.Request) {
		r.Header.Set(ImpersonationHeader, sessionID)
	})
	if writeRR.Code != http.StatusForbidden {
		t.Fatalf("write under VIEW_ONLY must 403, got %d", writeRR.Code)
	}
	body := decodeBody(t, writeRR)
	if body["code"] != "IMPERSONATION_REJECTED" || body["reason"] != "write not permitted" {
		t.Fatalf("unexpected rejection body: %v", body)
	}

	endRR := doJSON(t, fix.handler, http.MethodPost, "/v1/admin/impersonation/end",
		`{"sessionId":"`+sessionID+`"}`, func(r *http.Request) {
			r.Header.Set("Authorization", bearer)
		})
	if endRR.Code != http.StatusOK {
		t.Fatalf("end failed: %d %s", endRR.Code, endRR.Body.String())
	}

	// Завершённая сессия отклоняет даже чтение.
	afterRR := doJSON(t, fix.handler, http.MethodGet, "/v1/auth/me", "", func(r *http.Request) {
		r.Header.Set("Authorization", bearer)
		r.Header.Set(ImpersonationHeader, sessionID)
	})
	if afterRR.Code != http.StatusForbidden {
		t.Fatalf("ended session must reject, got %d", afterRR.Code)
	}
}

func TestImpersonationStartForbiddenForFinance(t *testing.T) {
	fix := newAPIFixture(t)
	fix.addAdmin(t, "fin", "fin@veloeats.kz", "correct horse", auth.AdminRoleFinance)
	fix.addUser(t, "cust", "user@veloeats.kz", "correct horse", auth.RoleCustomer)

	rr := doJSON(t, fix.handler, http.MethodPost, "/v1/admin/impersonation/start",
		`{"targetUserId":"cust","reason":"no business here"}`, func(r *http.Request) {
			r.Header.Set("Authorization", fix.bearerFor(t, "fin"))
		})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	missing, _ := body["missingPermissions"].([]any)
	if len(missing) == 0 || missing[0] != "impersonation.start" {
		t.Fatalf("expected missing impersonation.start, got %v", body)
	}
}

func TestImpersonationStartUnknownTarget(t *testing.T) {
	fix := newAPIFixture(t)
	fix.addAdmin(t, "adm", "ops@veloeats.kz", "correct horse", auth.AdminRoleSupport)

	rr := doJSON(t, fix.handler, http.MethodPost, "/v1/admin/impersonation/start",
		`{"targetUserId":"ghost","reason":"ticket"}`, func(r *http.Request) {
			r.Header.Set("Authorization", fix.bearerFor(t, "adm"))
		})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown target must 404, got %d", rr.Code)
	}
}

func TestAuditEndpointsPermissions(t *testing.T) {
	fix := newAPIFixture(t)
	fix.addAdmin(t, "ro", "ro@veloeats.kz", "correct horse", auth.AdminRoleReadonly)
	fix.addAdmin(t, "comp", "comp@veloeats.kz", "correct horse", auth.AdminRoleCompliance)
	fix.addUser(t, "cust", "user@veloeats.kz", "correct horse", auth.RoleCustomer)

	// READONLY_ADMIN может читать журнал.
	viewRR := doJSON(t, fix.handler, http.MethodGet, "/v1/admin/audit", "", func(r *http.Request) {
		r.Header.Set("Authorization", fix.bearerFor(t, "ro"))
	})
	if viewRR.Code != http.StatusOK {
		t.Fatalf("readonly admin must view audit: %d %s", viewRR.Code, viewRR.Body.String())
	}

	// Но не экспортировать.
	exportRR := doJSON(t, fix.handler, http.MethodGet, "/v1/admin/audit/export", "", func(r *http.Request) {
		r.Header.Set("Authorization", fix.bearerFor(t, "ro"))
	})
	if exportRR.Code != http.StatusForbidden {
		t.Fatalf("readonly admin must not export: %d", exportRR.Code)
	}

	// COMPLIANCE_ADMIN экспортирует.
	compRR := doJSON(t, fix.handler, http.MethodGet, "/v1/admin/audit/export", "", func(r *http.Request) {
		r.Header.Set("Authorization", fix.bearerFor(t, "comp"))
	})
	if compRR.Code != http.StatusOK {
		t.Fatalf("compliance export failed: %d", compRR.Code)
	}
	if compRR.Header().Get("Content-Disposition") == "" {
		t.Fatal("export must set Content-Disposition")
	}

	// Обычный пользователь не видит админских маршрутов.
	custRR := doJSON(t, fix.handler, http.MethodGet, "/v1/admin/audit", "", func(r *http.Request) {
		r.Header.Set("Authorization", fix.bearerFor(t, "cust"))
	})
	if custRR.Code != http.StatusForbidden {
		t.Fatalf("customer must be forbidden: %d", custRR.Code)
	}
}

func TestImpersonationListRequiresPermission(t *testing.T) {
	fix := newAPIFixture(t)
	fix.addAdmin(t, "fin", "fin@veloeats.kz", "correct horse", auth.AdminRoleFinance)
	fix.addAdmin(t, "ro", "ro@veloeats.kz", "correct horse", auth.AdminRoleReadonly)

	finRR := doJSON(t, fix.handler, http.MethodGet, "/v1/admin/impersonation", "", func(r *http.Request) {
		r.Header.Set("Authorization", fix.bearerFor(t, "fin"))
	})
	if finRR.Code != http.StatusForbidden {
		t.Fatalf("finance admin must not list sessions: %d", finRR.Code)
	}

	roRR := doJSON(t, fix.handler, http.MethodGet, "/v1/admin/impersonation", "", func(r *http.Request) {
		r.Header.Set("Authorization", fix.bearerFor(t, "ro"))
	})
	if roRR.Code != http.StatusOK {
		t.Fatalf("readonly admin holds impersonation.view: %d %s", roRR.Code, roRR.Body.String())
	}
}
