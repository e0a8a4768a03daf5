package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

func TestUserBuilder(t *testing.T) {
	u := NewUser().WithID("7").WithCompany("Acme").Unapproved().Build()

	assert.Equal(t, domainauth.UserID("7"), u.ID)
	assert.Equal(t, domainauth.RoleCompany, u.Role)
	assert.True(t, u.PendingApproval())
	assert.Equal(t, "Acme", u.DisplayName())

	st := AuthenticatedState(u, "tok")
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, domainauth.RoleCompany, st.Role())
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TESTUTIL_FLAG", "Yes")
	assert.True(t, envBool("TESTUTIL_FLAG"))

	t.Setenv("TESTUTIL_FLAG", "0")
	assert.False(t, envBool("TESTUTIL_FLAG"))
}
