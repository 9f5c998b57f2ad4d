package registry

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/maziwa/backend/internal/models"
)

// Service registers and lists the physical sites of the network: depots and
// KCC processing branches.
type Service interface {
	CreateDepot(ctx context.Context, name, county string, capacityLiters int64) (*models.Depot, error)
	ListDepots(ctx context.Context) ([]*models.Depot, error)
	CreateBranch(ctx context.Context, name, county string) (*models.KccBranch, error)
	ListBranches(ctx context.Context) ([]*models.KccBranch, error)
}

// DepotStore is the depot persistence the registry needs.
type DepotStore interface {
	Create(ctx context.Context, d *models.Depot) error
	List(ctx context.Context) ([]*models.Depot, error)
}

// BranchStore is the KCC branch persistence the registry needs.
type BranchStore interface {
	Create(ctx context.Context, b *models.KccBranch) error
	List(ctx context.Context) ([]*models.KccBranch, error)
}

var ErrInvalidSite = errors.New("invalid site")

type service struct {
	depots   DepotStore
	branches BranchStore
}

func NewService(depots DepotStore, branches BranchStore) *service {
	return &service{depots: depots, branches: branches}
}

var _ Service = (*service)(nil)

var countySanitize = regexp.MustCompile(`[^a-z ]+`)

// normalizeCounty lowercases and strips punctuation so county matching
// between depots and branches is exact.
func normalizeCounty(county string) string {
	c := strings.ToLower(strings.TrimSpace(county))
	c = countySanitize.ReplaceAllString(c, "")
	return strings.Join(strings.Fields(c), " ")
}

func (s *service) CreateDepot(ctx context.Context, name, county string, capacityLiters int64) (*models.Depot, error) {
	name = strings.TrimSpace(name)
	county = normalizeCounty(county)
	if name == "" || county == "" || capacityLiters <= 0 {
		return nil, ErrInvalidSite
	}
	d := &models.Depot{
		Name:           name,
		County:         county,
		CapacityLiters: capacityLiters,
		IsActive:       true,
	}
	if err := s.depots.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) ListDepots(ctx context.Context) ([]*models.Depot, error) {
	return s.depots.List(ctx)
}

func (s *service) CreateBranch(ctx context.Context, name, county string) (*models.KccBranch, error) {
	name = strings.TrimSpace(name)
	county = normalizeCounty(county)
	if name == "" || county == "" {
		return nil, ErrInvalidSite
	}
	b := &models.KccBranch{
		Name:     name,
		County:   county,
		IsActive: true,
	}
	if err := s.branches.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) ListBranches(ctx context.Context) ([]*models.KccBranch, error) {
	return s.branches.List(ctx)
}
