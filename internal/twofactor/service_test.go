package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"auth-service/internal/apperr"
	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

type fakeUsers struct {
	byID map[string]*auth.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUsers) SetTOTPSecret(_ context.Context, userID, secret string) error {
	user, ok := f.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	user.TOTPSecret = &secret
	user.TOTPEnabledAt = nil
	return nil
}

func (f *fakeUsers) EnableTOTP(_ context.Context, userID string, enabledAt time.Time) error {
	user, ok := f.byID[userID]
	if !ok || user.TOTPSecret == nil {
		return auth.ErrNotFound
	}
	at := enabledAt.UTC()
	user.TOTPEnabledAt = &at
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUsers) {
	t.Helper()
	users := &fakeUsers{byID: make(map[string]*auth.User)}
	return NewService(users, observability.NewLogger(), "auth-service"), users
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func TestSetupEnableVerify(t *testing.T) {
	t.Parallel()

	service, users := newTestService(t)
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	setup, err := service.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if setup.Secret == "" || setup.OTPAuthURL == "" {
		t.Fatalf("incomplete setup result: %+v", setup)
	}
	if users.byID["u1"].TOTPEnabledAt != nil {
		t.Fatalf("setup alone must not activate the factor")
	}

	if err := service.Enable(context.Background(), "u1", currentCode(t, setup.Secret)); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if users.byID["u1"].TOTPEnabledAt == nil {
		t.Fatalf("factor not activated")
	}

	if err := service.Verify(context.Background(), "u1", currentCode(t, setup.Secret)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestEnable_RejectsWrongCode(t *testing.T) {
	t.Parallel()

	service, users := newTestService(t)
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	if _, err := service.Setup(context.Background(), "u1"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	err := service.Enable(context.Background(), "u1", "000000")
	if apperr.CodeOf(err) != apperr.CodeBadRequest {
		t.Fatalf("want bad request for wrong code, got %v", err)
	}
	if users.byID["u1"].TOTPEnabledAt != nil {
		t.Fatalf("wrong code must not activate the factor")
	}
}

func TestEnable_RequiresSetup(t *testing.T) {
	t.Parallel()

	service, users := newTestService(t)
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	err := service.Enable(context.Background(), "u1", "123456")
	if apperr.CodeOf(err) != apperr.CodeBadRequest {
		t.Fatalf("enable without setup must fail, got %v", err)
	}
}

func TestSetup_RejectedOnceEnabled(t *testing.T) {
	t.Parallel()

	service, users := newTestService(t)
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	setup, err := service.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := service.Enable(context.Background(), "u1", currentCode(t, setup.Secret)); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	_, err = service.Setup(context.Background(), "u1")
	if apperr.CodeOf(err) != apperr.CodeBadRequest {
		t.Fatalf("re-setup of an active factor must be rejected, got %v", err)
	}
}

func TestVerify_NotEnabled(t *testing.T) {
	t.Parallel()

	service, users := newTestService(t)
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	err := service.Verify(context.Background(), "u1", "123456")
	if apperr.CodeOf(err) != apperr.CodeBadRequest {
		t.Fatalf("verify without an active factor must fail, got %v", err)
	}
}

func TestVerify_WrongCodeUnauthorized(t *testing.T) {
	t.Parallel()

	service, users := newTestService(t)
	users.byID["u1"] = &auth.User{ID: "u1", Email: "a@x.com"}

	setup, err := service.Setup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := service.Enable(context.Background(), "u1", currentCode(t, setup.Secret)); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	err = service.Verify(context.Background(), "u1", "000000")
	if apperr.CodeOf(err) != apperr.CodeUnauthorized {
		t.Fatalf("want unauthorized for wrong code, got %v", err)
	}
}
