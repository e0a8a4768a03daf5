package auth

import (
	"context"
	"errors"
	"testing"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	"github.com/itiportal/portal-session/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCredentialStore_WriteReadClear(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	creds, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, creds.Token)
	assert.Nil(t, creds.User)

	require.NoError(t, store.Write(ctx, "abc", domainauth.UserRecord{ID: "1", Role: domainauth.RoleStudent}))
	assert.JSONEq(t, `{"id":1,"role":"student"}`, string(store.RawUser()))

	creds, err = store.Read(ctx)
	require.NoError(t, err)
	assert.True(t, creds.Complete())
	assert.Equal(t, "abc", creds.Token)
	assert.Equal(t, domainauth.RoleStudent, creds.User.Role)

	require.NoError(t, store.Clear(ctx))
	creds, err = store.Read(ctx)
	require.NoError(t, err)
	assert.False(t, creds.Complete())
	assert.Empty(t, creds.Token)
	assert.Nil(t, creds.User)
}

func TestMemoryCredentialStore_InjectedErrors(t *testing.T) {
	store := NewSeededCredentialStore("abc", domainauth.UserRecord{ID: "1"})
	store.WriteErr = errors.New("disk full")
	store.ClearErr = errors.New("locked")

	assert.EqualError(t, store.Write(context.Background(), "x", domainauth.UserRecord{}), "disk full")
	assert.EqualError(t, store.Clear(context.Background()), "locked")

	creds, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", creds.Token)
}

func TestFakePortalAPI_DefaultsAndCounters(t *testing.T) {
	api := NewFakePortalAPI()
	ctx := context.Background()

	res, err := api.Login(ctx, ports.LoginInput{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "token-1", res.Token)
	assert.Equal(t, domainauth.RoleStudent, res.User.Role)

	raw, err := api.FetchCompanyProfile(ctx, "token-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"company_name":"Acme","logo":"x.png"}`, string(raw))

	require.NoError(t, api.Logout(ctx, "token-1"))

	assert.Equal(t, 1, api.Calls("Login"))
	assert.Equal(t, 1, api.Calls("Logout"))
	assert.Equal(t, 0, api.Calls("FetchProfile"))
	assert.Equal(t, 3, api.TotalCalls())
}

func TestFakePortalAPI_FuncOverrides(t *testing.T) {
	api := &FakePortalAPI{
		LogoutFunc: func(context.Context, string) error { return errors.New("500") },
	}
	assert.EqualError(t, api.Logout(context.Background(), "t"), "500")
	assert.Equal(t, 1, api.Calls("Logout"))
}
