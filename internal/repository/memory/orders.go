package memory

import (
	"context"
	"sort"

	"github.com/stockvn/paygate/internal/models"
)

func (s *Store) CreateOrder(ctx context.Context, order *models.SymbolOrder) error {
	_ = order.BeforeCreate(nil)
	s.stamp(&order.CreatedAt, &order.UpdatedAt)
	for i := range order.Items {
		item := &order.Items[i]
		_ = item.BeforeCreate(nil)
		item.OrderID = order.ID
		s.stamp(&item.CreatedAt, nil)
	}
	return s.write(func(st *state) error {
		c := *order
		c.Items = nil
		st.orders[order.ID] = &c
		st.nextSeq(order.ID)
		for i := range order.Items {
			item := order.Items[i]
			st.items[item.ID] = &item
			st.nextSeq(item.ID)
		}
		return nil
	})
}

// assemble returns a copy of the order with its items attached.
func (st *state) assemble(o *models.SymbolOrder) *models.SymbolOrder {
	c := *o
	c.Items = nil
	for _, item := range st.items {
		if item.OrderID == o.ID {
			c.Items = append(c.Items, *item)
		}
	}
	sort.Slice(c.Items, func(i, j int) bool {
		return st.insertionSeq[c.Items[i].ID] < st.insertionSeq[c.Items[j].ID]
	})
	return &c
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.SymbolOrder, error) {
	var out *models.SymbolOrder
	err := s.view(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return notFound("symbol order")
		}
		out = st.assemble(o)
		return nil
	})
	return out, err
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (*models.SymbolOrder, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) GetOrderByIntent(ctx context.Context, intentID string) (*models.SymbolOrder, error) {
	var out *models.SymbolOrder
	err := s.view(func(st *state) error {
		for _, o := range st.orders {
			if o.IntentID != nil && *o.IntentID == intentID {
				out = st.assemble(o)
				return nil
			}
		}
		return notFound("symbol order")
	})
	return out, err
}

func (s *Store) UpdateOrder(ctx context.Context, order *models.SymbolOrder) error {
	s.stamp(nil, &order.UpdatedAt)
	return s.write(func(st *state) error {
		if _, ok := st.orders[order.ID]; !ok {
			return notFound("symbol order")
		}
		c := *order
		c.Items = nil
		st.orders[order.ID] = &c
		return nil
	})
}

func (s *Store) UpdateOrderItem(ctx context.Context, item *models.SymbolOrderItem) error {
	return s.write(func(st *state) error {
		if _, ok := st.items[item.ID]; !ok {
			return notFound("symbol order item")
		}
		c := *item
		st.items[item.ID] = &c
		return nil
	})
}

func (s *Store) ListOrders(ctx context.Context, userID string, offset, limit int) ([]*models.SymbolOrder, int64, error) {
	var out []*models.SymbolOrder
	var total int64
	err := s.view(func(st *state) error {
		for _, o := range st.orders {
			if o.UserID == userID {
				out = append(out, st.assemble(o))
			}
		}
		total = int64(len(out))
		sort.Slice(out, func(i, j int) bool { return st.insertionSeq[out[i].ID] > st.insertionSeq[out[j].ID] })
		out = page(out, offset, limit)
		return nil
	})
	return out, total, err
}

func (s *Store) CreateLicense(ctx context.Context, license *models.SymbolLicense) error {
	_ = license.BeforeCreate(nil)
	s.stamp(&license.CreatedAt, &license.UpdatedAt)
	return s.write(func(st *state) error {
		if license.Status == models.LicenseActive {
			for _, l := range st.licenses {
				if l.UserID == license.UserID && l.SymbolID == license.SymbolID && l.Status == models.LicenseActive {
					return duplicate("symbol license")
				}
			}
		}
		c := *license
		st.licenses[license.ID] = &c
		st.nextSeq(license.ID)
		return nil
	})
}

func (s *Store) GetActiveLicenseForUpdate(ctx context.Context, userID string, symbolID int64) (*models.SymbolLicense, error) {
	var out *models.SymbolLicense
	err := s.view(func(st *state) error {
		for _, l := range st.licenses {
			if l.UserID == userID && l.SymbolID == symbolID && l.Status == models.LicenseActive {
				c := *l
				out = &c
				return nil
			}
		}
		return notFound("symbol license")
	})
	return out, err
}

func (s *Store) GetLicense(ctx context.Context, id string) (*models.SymbolLicense, error) {
	var out *models.SymbolLicense
	err := s.view(func(st *state) error {
		l, ok := st.licenses[id]
		if !ok {
			return notFound("symbol license")
		}
		c := *l
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) UpdateLicense(ctx context.Context, license *models.SymbolLicense) error {
	s.stamp(nil, &license.UpdatedAt)
	return s.write(func(st *state) error {
		if _, ok := st.licenses[license.ID]; !ok {
			return notFound("symbol license")
		}
		if license.Status == models.LicenseActive {
			for _, l := range st.licenses {
				if l.ID != license.ID && l.UserID == license.UserID && l.SymbolID == license.SymbolID && l.Status == models.LicenseActive {
					return duplicate("symbol license")
				}
			}
		}
		c := *license
		st.licenses[license.ID] = &c
		return nil
	})
}

func (s *Store) ListLicenses(ctx context.Context, userID string) ([]*models.SymbolLicense, error) {
	var out []*models.SymbolLicense
	err := s.view(func(st *state) error {
		for _, l := range st.licenses {
			if l.UserID == userID {
				c := *l
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.insertionSeq[out[i].ID] > st.insertionSeq[out[j].ID] })
		return nil
	})
	return out, err
}
