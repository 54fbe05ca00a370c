package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/shared"
)

func TestDefaultPolicyCapabilities(t *testing.T) {
	p := DefaultPolicy()
	pharmacist := shared.Actor{ID: 1, Role: shared.RolePharmacist}
	finance := shared.Actor{ID: 2, Role: shared.RoleFinance}
	doctor := shared.Actor{ID: 3, Role: shared.RoleDoctor}
	admin := shared.Actor{ID: 4, Role: "ADMIN"}

	require.True(t, p.CanDispense(pharmacist))
	require.False(t, p.CanDispense(finance))
	require.False(t, p.CanDispense(doctor))
	require.True(t, p.CanDispense(admin))

	require.True(t, p.CanRecordPayment(finance))
	require.False(t, p.CanRecordPayment(pharmacist))
	require.True(t, p.CanManagePrescription(doctor))
	require.False(t, p.CanViewFinance(shared.Actor{}))
	require.True(t, p.Allowed(finance, shared.PermAuditView))
	require.True(t, p.Allowed(admin, shared.PermAuditView))
	require.False(t, p.Allowed(pharmacist, shared.PermAuditView))
}

func TestRequireWrapsForbidden(t *testing.T) {
	err := DefaultPolicy().Require(shared.Actor{ID: 9, Role: shared.RoleDoctor}, shared.PermFinancePayment)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestMiddlewareRequireAny(t *testing.T) {
	m := Middleware{Policy: DefaultPolicy()}
	handler := m.RequireAny(shared.PermPrescriptionDispense)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		actor  *shared.Actor
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "doctor", actor: &shared.Actor{ID: 1, Role: shared.RoleDoctor}, status: http.StatusForbidden},
		{name: "pharmacist", actor: &shared.Actor{ID: 2, Role: shared.RolePharmacist}, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.actor != nil {
				req = req.WithContext(shared.ContextWithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	m := Middleware{Policy: NewPolicy(map[string][]string{"clerk": {"a", "b"}})}
	serve := func(perms ...string) int {
		handler := m.RequireAll(perms...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 5, Role: "clerk"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, serve("A", " b "))
	require.Equal(t, http.StatusForbidden, serve("a", "c"))
	require.Equal(t, http.StatusNoContent, serve())
}
