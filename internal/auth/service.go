package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/armchr/graphogm/internal/ogm"
	"github.com/armchr/graphogm/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is not active")
)

// groupLookupLimit bounds the concurrent group permission queries.
const groupLookupLimit = 4

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Service implements user management on top of a Mapper.
type Service struct {
	mapper *ogm.Mapper
	models *Models
	logger *zap.Logger
}

func NewService(mapper *ogm.Mapper, models *Models, logger *zap.Logger) *Service {
	return &Service{mapper: mapper, models: models, logger: logger}
}

func (s *Service) Models() *Models {
	return s.models
}

// CreateUser creates a User, storing a bcrypt hash of props["password"].
func (s *Service) CreateUser(ctx context.Context, props map[string]any) (*ogm.Node, error) {
	values := make(map[string]any, len(props))
	for k, v := range props {
		values[k] = v
	}
	raw, ok := values["password"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: %s.password", ogm.ErrRequiredConstraint, UserType)
	}
	hash, err := HashPassword(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	values["password"] = hash
	return s.mapper.Create(ctx, s.models.User, values)
}

// CreateSuperUser is CreateUser with the super user and staff flags set.
func (s *Service) CreateSuperUser(ctx context.Context, props map[string]any) (*ogm.Node, error) {
	values := make(map[string]any, len(props)+2)
	for k, v := range props {
		values[k] = v
	}
	values["is_super_user"] = true
	values["is_staff_user"] = true
	return s.CreateUser(ctx, values)
}

func (s *Service) SetPassword(ctx context.Context, user *ogm.Node, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return user.Update(ctx, "password", hash)
}

// Authenticate returns the active user with email and password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*ogm.Node, error) {
	user, err := s.mapper.FindBy(ctx, s.models.User, "email", email)
	if errors.Is(err, ogm.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	hash, _ := user.Props["password"].(string)
	if !CheckPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}
	if !flag(user, "is_active_user", true) {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// UserPermissions returns the permissions granted to user directly and
// through its groups, each once. Inactive users have none.
func (s *Service) UserPermissions(ctx context.Context, user *ogm.Node) ([]*ogm.Node, error) {
	if !flag(user, "is_active_user", true) {
		return nil, nil
	}
	own, err := related(ctx, user, "permissions")
	if err != nil {
		return nil, err
	}
	groups, err := related(ctx, user, "groups")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []*ogm.Node
	add := func(nodes []*ogm.Node) {
		for _, n := range nodes {
			if !seen[n.UUID()] {
				seen[n.UUID()] = true
				out = append(out, n)
			}
		}
	}
	add(own)

	type lookup struct {
		perms []*ogm.Node
		err   error
	}
	results := util.DoWorkList(groups, groupLookupLimit, func(g *ogm.Node) lookup {
		perms, err := related(ctx, g, "permissions")
		return lookup{perms: perms, err: err}
	})
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		add(res.perms)
	}
	return out, nil
}

// HasPermission reports whether user holds the permission codename. Super
// users hold every permission.
func (s *Service) HasPermission(ctx context.Context, user *ogm.Node, codename string) (bool, error) {
	if flag(user, "is_super_user", false) {
		return true, nil
	}
	perms, err := s.UserPermissions(ctx, user)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if code, _ := p.Get("codename"); code == codename {
			return true, nil
		}
	}
	s.logger.Debug("Permission denied", zap.String("user", user.UUID()), zap.String("permission", codename))
	return false, nil
}

func related(ctx context.Context, n *ogm.Node, name string) ([]*ogm.Node, error) {
	rel, err := n.Rel(name)
	if err != nil {
		return nil, err
	}
	return rel.Nodes(ctx, ogm.RelGetOptions{Direction: ogm.From})
}

func flag(n *ogm.Node, name string, def bool) bool {
	v, ok := n.Props[name].(bool)
	if !ok {
		return def
	}
	return v
}
