package session

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"urbanaid/internal/domain"
	"urbanaid/internal/gateway"
)

// Backend contract: 10-digit Indian mobile starting 6-9. Checked here before
// the request so the user gets a local message, and again server-side.
var mobileRE = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// Manager establishes, reads and clears the persisted identity. It is the
// single writer of the session keys; everything else observes through Store.
type Manager struct {
	Store  Store
	Client *gateway.Client
}

// SignIn authenticates and persists token, role, id, and (best effort) the
// display name. The name lookup may fail without failing the sign-in.
func (m *Manager) SignIn(ctx context.Context, email, password string) (domain.Actor, error) {
	res, err := m.Client.SignIn(ctx, email, password)
	if err != nil {
		return domain.Actor{}, err
	}
	actor := domain.Actor{
		ID:    strconv.FormatInt(res.UserID, 10),
		Role:  domain.ParseRole(res.Role),
		Token: res.JWT,
	}
	if err := m.Store.Set(ctx, KeyToken, actor.Token); err != nil {
		return domain.Actor{}, err
	}
	if err := m.Store.Set(ctx, KeyUserRole, string(actor.Role)); err != nil {
		return domain.Actor{}, err
	}
	if err := m.Store.Set(ctx, KeyUserID, actor.ID); err != nil {
		return domain.Actor{}, err
	}
	m.Client.BearerToken = actor.Token
	if user, err := m.Client.GetUser(ctx, actor.ID); err == nil && user.Name != "" {
		actor.Name = user.Name
		_ = m.Store.Set(ctx, KeyUserName, user.Name)
	}
	return actor, nil
}

// Register validates and submits a new-user payload. It does not sign in.
func (m *Manager) Register(ctx context.Context, reg domain.Registration) error {
	if reg.Name == "" || reg.Email == "" || reg.Password == "" {
		return &gateway.ValidationError{Message: "name, email and password are required"}
	}
	if !mobileRE.MatchString(reg.Mobile) {
		return &gateway.ValidationError{Message: "enter a valid 10-digit mobile starting with 6-9"}
	}
	if reg.Role == domain.RoleVolunteer && reg.Area == "" {
		return &gateway.ValidationError{Message: "service area is required for volunteers"}
	}
	return m.Client.Register(ctx, reg)
}

// SignOut clears the persisted identity. Calling it while signed out is a
// no-op.
func (m *Manager) SignOut(ctx context.Context) error {
	for _, key := range []string{KeyToken, KeyUserRole, KeyUserID, KeyUserName} {
		if err := m.Store.Delete(ctx, key); err != nil {
			return err
		}
	}
	m.Client.BearerToken = ""
	return nil
}

// Current is a synchronous read of the persisted identity. The second
// return is false before sign-in. It also primes the gateway token so a
// freshly constructed client is ready to make authenticated calls.
func (m *Manager) Current(ctx context.Context) (domain.Actor, bool, error) {
	token, err := m.Store.Get(ctx, KeyToken)
	if err != nil {
		return domain.Actor{}, false, err
	}
	if token == "" {
		return domain.Actor{}, false, nil
	}
	if tokenExpired(token) {
		// stale session: clear it rather than let every request 401
		if err := m.SignOut(ctx); err != nil {
			return domain.Actor{}, false, err
		}
		return domain.Actor{}, false, nil
	}
	role, err := m.Store.Get(ctx, KeyUserRole)
	if err != nil {
		return domain.Actor{}, false, err
	}
	id, err := m.Store.Get(ctx, KeyUserID)
	if err != nil {
		return domain.Actor{}, false, err
	}
	name, err := m.Store.Get(ctx, KeyUserName)
	if err != nil {
		return domain.Actor{}, false, err
	}
	m.Client.BearerToken = token
	return domain.Actor{
		ID:    id,
		Role:  domain.ParseRole(role),
		Name:  name,
		Token: token,
	}, true, nil
}

// RequireActor returns the current actor or an AuthError telling the user
// to sign in.
func (m *Manager) RequireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok, err := m.Current(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !ok {
		return domain.Actor{}, &gateway.AuthError{Message: "not signed in; run ua signin"}
	}
	return actor, nil
}

// tokenExpired checks the stored JWT's exp claim without verifying the
// signature; only the backend holds the key, and it re-verifies every
// request anyway. An unparsable token counts as expired.
func tokenExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}

// ValidateMobile exposes the registration mobile check for UI-level
// validation.
func ValidateMobile(mobile string) error {
	if !mobileRE.MatchString(mobile) {
		return fmt.Errorf("invalid mobile %q: must be 10 digits starting 6-9", mobile)
	}
	return nil
}
