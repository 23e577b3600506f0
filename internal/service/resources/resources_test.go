package resources

import (
	"context"
	"errors"
	"testing"
	"time"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
)

type mockResourceRepo struct {
	createDriverFn  func(ctx context.Context, d *domain.Driver) (int64, error)
	getDriverFn     func(ctx context.Context, id int64) (*domain.Driver, error)
	listDriversFn   func(ctx context.Context, limit, offset *int) ([]domain.Driver, error)
	createVehicleFn func(ctx context.Context, v *domain.Vehicle) (int64, error)
	getVehicleFn    func(ctx context.Context, id int64) (*domain.Vehicle, error)
	listVehiclesFn  func(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error)
}

func (m *mockResourceRepo) CreateDriver(ctx context.Context, d *domain.Driver) (int64, error) {
	return m.createDriverFn(ctx, d)
}

func (m *mockResourceRepo) GetDriver(ctx context.Context, id int64) (*domain.Driver, error) {
	return m.getDriverFn(ctx, id)
}

func (m *mockResourceRepo) ListDrivers(ctx context.Context, limit, offset *int) ([]domain.Driver, error) {
	return m.listDriversFn(ctx, limit, offset)
}

func (m *mockResourceRepo) CreateVehicle(ctx context.Context, v *domain.Vehicle) (int64, error) {
	return m.createVehicleFn(ctx, v)
}

func (m *mockResourceRepo) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	return m.getVehicleFn(ctx, id)
}

func (m *mockResourceRepo) ListVehicles(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error) {
	return m.listVehiclesFn(ctx, limit, offset)
}

func TestNewService_TimeoutDefaults(t *testing.T) {
	t.Parallel()

	if s := NewService(&mockResourceRepo{}, nil, 0); s.operationTimeout != 3*time.Second {
		t.Fatalf("default timeout 3s, got %v", s.operationTimeout)
	}
	if s := NewService(&mockResourceRepo{}, nil, -time.Second); s.operationTimeout != 3*time.Second {
		t.Fatalf("negative timeout should default to 3s, got %v", s.operationTimeout)
	}
	if s := NewService(&mockResourceRepo{}, nil, 5*time.Second); s.operationTimeout != 5*time.Second {
		t.Fatalf("expected timeout 5s, got %v", s.operationTimeout)
	}
}

func TestService_CreateDriver_Success(t *testing.T) {
	t.Parallel()

	repo := &mockResourceRepo{
		createDriverFn: func(ctx context.Context, d *domain.Driver) (int64, error) {
			if d.Name != "Artem" {
				t.Fatalf("expected trimmed name, got %q", d.Name)
			}
			if _, ok := ctx.Deadline(); !ok {
				t.Fatal("expected deadline on repo context")
			}
			return 7, nil
		},
	}
	s := NewService(repo, nil, time.Second)

	id, err := s.CreateDriver(context.Background(), &domain.Driver{
		Name: "  Artem ", Phone: "+70000000000", LicenseNumber: "AB-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
}

func TestService_CreateDriver_InvalidInput(t *testing.T) {
	t.Parallel()

	repo := &mockResourceRepo{
		createDriverFn: func(ctx context.Context, d *domain.Driver) (int64, error) {
			t.Fatal("CreateDriver should not be called on invalid input")
			return 0, nil
		},
	}
	s := NewService(repo, nil, time.Second)

	cases := []*domain.Driver{
		nil,
		{Name: " ", Phone: "+70000000000", LicenseNumber: "L"},
		{Name: "A", Phone: "123", LicenseNumber: "L"},
		{Name: "A", Phone: "+70000000000", LicenseNumber: " "},
	}
	for _, c := range cases {
		if _, err := s.CreateDriver(context.Background(), c); !errors.Is(err, apperr.ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %#v, got %v", c, err)
		}
	}
}

func TestService_CreateDriver_ConflictPassesThrough(t *testing.T) {
	t.Parallel()

	repo := &mockResourceRepo{
		createDriverFn: func(ctx context.Context, d *domain.Driver) (int64, error) {
			return 0, apperr.ErrConflict
		},
	}
	s := NewService(repo, nil, time.Second)

	_, err := s.CreateDriver(context.Background(), &domain.Driver{Name: "A", Phone: "+70000000000", LicenseNumber: "L"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestService_GetDriver(t *testing.T) {
	t.Parallel()

	expected := &domain.Driver{ID: 3, Name: "A", IsAvailable: true}
	wantErr := errors.New("boom")
	repo := &mockResourceRepo{
		getDriverFn: func(ctx context.Context, id int64) (*domain.Driver, error) {
			switch id {
			case 3:
				return expected, nil
			case 4:
				return nil, wantErr
			default:
				return nil, nil
			}
		},
	}
	s := NewService(repo, nil, time.Second)

	got, err := s.GetDriver(context.Background(), 3)
	if err != nil || got != expected {
		t.Fatalf("expected %#v, got %#v err=%v", expected, got, err)
	}
	if _, err := s.GetDriver(context.Background(), 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetDriver(context.Background(), 4); !errors.Is(err, wantErr) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestService_ListDrivers_PassesPaging(t *testing.T) {
	t.Parallel()

	limit, offset := 10, 5
	repo := &mockResourceRepo{
		listDriversFn: func(ctx context.Context, gotLimit, gotOffset *int) ([]domain.Driver, error) {
			if gotLimit == nil || *gotLimit != limit {
				t.Fatalf("expected limit %d, got %v", limit, gotLimit)
			}
			if gotOffset == nil || *gotOffset != offset {
				t.Fatalf("expected offset %d, got %v", offset, gotOffset)
			}
			return []domain.Driver{{ID: 1}, {ID: 2}}, nil
		},
	}
	s := NewService(repo, nil, time.Second)

	res, err := s.ListDrivers(context.Background(), &limit, &offset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res))
	}
}

func TestService_CreateVehicle_Validation(t *testing.T) {
	t.Parallel()

	var created *domain.Vehicle
	repo := &mockResourceRepo{
		createVehicleFn: func(ctx context.Context, v *domain.Vehicle) (int64, error) {
			created = v
			return 1, nil
		},
	}
	s := NewService(repo, nil, time.Second)

	invalid := []*domain.Vehicle{
		nil,
		{Number: " ", Type: domain.VehicleVan, Capacity: 1},
		{Number: "A1", Type: "rocket", Capacity: 1},
		{Number: "A1", Type: domain.VehicleVan, Capacity: 0},
	}
	for _, v := range invalid {
		if _, err := s.CreateVehicle(context.Background(), v); !errors.Is(err, apperr.ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %#v, got %v", v, err)
		}
	}
	if created != nil {
		t.Fatal("repo must not be called for invalid vehicles")
	}

	id, err := s.CreateVehicle(context.Background(), &domain.Vehicle{Number: " A001AA ", Type: domain.VehicleCar, Capacity: 4})
	if err != nil || id != 1 {
		t.Fatalf("unexpected result id=%d err=%v", id, err)
	}
	if created.Number != "A001AA" {
		t.Fatalf("expected trimmed number, got %q", created.Number)
	}
}

func TestService_GetVehicle_NotFound(t *testing.T) {
	t.Parallel()

	repo := &mockResourceRepo{
		getVehicleFn: func(ctx context.Context, id int64) (*domain.Vehicle, error) {
			return nil, nil
		},
		listVehiclesFn: func(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error) {
			return nil, errors.New("db down")
		},
	}
	s := NewService(repo, nil, time.Second)

	got, err := s.GetVehicle(context.Background(), 1)
	if !errors.Is(err, apperr.ErrNotFound) || got != nil {
		t.Fatalf("expected ErrNotFound and nil, got %#v %v", got, err)
	}
	if _, err := s.ListVehicles(context.Background(), nil, nil); err == nil {
		t.Fatal("expected repo error")
	}
}
