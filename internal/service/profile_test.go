package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/mocks"
	"github.com/itiportal/portal-session/internal/ports"
)

func TestProfileService_Fetch_NoUserContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	svc := NewProfileService(ProfileServiceOptions{API: api})

	_, err := svc.Fetch(context.Background(), "tok", nil)
	assert.ErrorIs(t, err, ErrNoUserContext)

	_, err = svc.Fetch(context.Background(), "tok", &domainauth.UserRecord{ID: "1"})
	assert.ErrorIs(t, err, ErrNoUserContext)
}

func TestProfileService_Fetch_Person(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	api.EXPECT().FetchProfile(gomock.Any(), "tok").
		Return(json.RawMessage(`{"id":1,"email":"new@iti.gov.eg","profile":{"first_name":"Omar","last_name":"Ali"}}`), nil)

	svc := NewProfileService(ProfileServiceOptions{API: api})
	in := studentUser()
	fresh, err := svc.Fetch(context.Background(), "tok", &in)
	require.NoError(t, err)

	assert.Equal(t, domainauth.RoleStudent, fresh.Role)
	assert.Equal(t, "new@iti.gov.eg", fresh.Email)
	assert.Equal(t, "Omar Ali", fresh.DisplayName())
	assert.Equal(t, "student@iti.gov.eg", in.Email, "input is not mutated")
}

func TestProfileService_Fetch_Company(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	api.EXPECT().FetchCompanyProfile(gomock.Any(), "tok").
		Return(json.RawMessage(`{"id":999,"role":"student","company_name":"Acme","industry":"Software"}`), nil)

	svc := NewProfileService(ProfileServiceOptions{API: api})
	in := companyUser()
	fresh, err := svc.Fetch(context.Background(), "tok", &in)
	require.NoError(t, err)

	assert.Equal(t, domainauth.UserID("42"), fresh.ID)
	assert.Equal(t, domainauth.RoleCompany, fresh.Role)
	profile, ok := fresh.Profile.(domainauth.CompanyProfile)
	require.True(t, ok)
	assert.Equal(t, "Acme", profile.CompanyName)
	assert.Equal(t, "Software", profile.Industry)
}

func TestProfileService_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		apiErr    error
		wantShape bool
		wantFetch bool
	}{
		{name: "missing envelope", apiErr: fmt.Errorf("%w: data.user", ports.ErrEnvelopeFieldMissing), wantShape: true},
		{name: "server error", apiErr: apperrors.FromHTTPStatus(500, ""), wantFetch: true},
		{name: "network", apiErr: apperrors.FromTransport(assert.AnError), wantFetch: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			api := mocks.NewMockPortalAPI(ctrl)
			api.EXPECT().FetchProfile(gomock.Any(), gomock.Any()).Return(nil, tt.apiErr)

			svc := NewProfileService(ProfileServiceOptions{API: api})
			in := studentUser()
			_, err := svc.Fetch(context.Background(), "tok", &in)
			require.Error(t, err)

			assert.Equal(t, tt.wantShape, errors.Is(err, ErrInvalidResponseShape))
			var fetchErr *ProfileFetchError
			assert.Equal(t, tt.wantFetch, errors.As(err, &fetchErr))
		})
	}
}

func TestProfileService_Fetch_UndecodableUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	api.EXPECT().FetchProfile(gomock.Any(), gomock.Any()).Return(json.RawMessage(`[1,2,3]`), nil)

	svc := NewProfileService(ProfileServiceOptions{API: api})
	in := studentUser()
	_, err := svc.Fetch(context.Background(), "tok", &in)
	assert.ErrorIs(t, err, ErrInvalidResponseShape)
}
