package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hivechat/relay/internal/domain"
)

// Authority answers membership questions against the persisted
// group/channel store. The realtime layer never reads that store
// directly.
type Authority interface {
	IsMember(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error)
	IsSuperAdmin(ctx context.Context, user *domain.User) (bool, error)
}

// HTTPAuthority asks the persistence service over request/response.
// Super-admin status rides on the token roles claim, stamped by the
// same service that signs the token.
type HTTPAuthority struct {
	base   string
	client *http.Client
}

func NewHTTPAuthority(baseURL string) *HTTPAuthority {
	return &HTTPAuthority{
		base:   baseURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *HTTPAuthority) IsMember(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error) {
	u := fmt.Sprintf("%s/api/channels/%s/members/%s",
		a.base, url.PathEscape(string(room)), url.PathEscape(string(user.ID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, nil
	case http.StatusOK:
	default:
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Member bool `json:"member"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return body.Member, nil
}

func (a *HTTPAuthority) IsSuperAdmin(ctx context.Context, user *domain.User) (bool, error) {
	return user.HasRole(domain.RoleSuperAdmin), nil
}

// StaticAuthority holds membership in memory. Used by tests and by
// standalone mode, where AllowAll admits everyone to every room.
type StaticAuthority struct {
	AllowAll bool

	mu      sync.RWMutex
	members map[domain.RoomID]map[domain.UserID]struct{}
}

func NewStaticAuthority() *StaticAuthority {
	return &StaticAuthority{members: make(map[domain.RoomID]map[domain.UserID]struct{})}
}

func (a *StaticAuthority) Grant(uid domain.UserID, room domain.RoomID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.members[room] == nil {
		a.members[room] = make(map[domain.UserID]struct{})
	}
	a.members[room][uid] = struct{}{}
}

func (a *StaticAuthority) IsMember(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error) {
	if a.AllowAll {
		return true, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.members[room][user.ID]
	return ok, nil
}

func (a *StaticAuthority) IsSuperAdmin(ctx context.Context, user *domain.User) (bool, error) {
	return user.HasRole(domain.RoleSuperAdmin), nil
}
