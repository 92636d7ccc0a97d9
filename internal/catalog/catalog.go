// Package catalog provides the service offerings shown on the portal.
package catalog

import (
	"context"
	"errors"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/model"
)

var services = []model.Service{
	{
		ID:          1,
		Title:       "Emergency Gas Leak",
		Description: "24/7 emergency response for suspected gas leaks",
		Icon:        "alert-triangle",
		Urgent:      true,
	},
	{
		ID:          2,
		Title:       "Meter Installation",
		Description: "New meter installation or replacement services",
		Icon:        "gauge",
	},
	{
		ID:          3,
		Title:       "Maintenance",
		Description: "Regular maintenance and inspection services",
		Icon:        "wrench",
	},
	{
		ID:          4,
		Title:       "Home Connection",
		Description: "New home gas connection services",
		Icon:        "home",
	},
}

// Static returns a copy of the built-in catalog.
func Static() []model.Service {
	out := make([]model.Service, len(services))
	copy(out, services)
	return out
}

// Find returns the service with the given id from list.
func Find(list []model.Service, id int64) (model.Service, bool) {
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	return model.Service{}, false
}

// ServiceLister is the slice of the API client the loader needs.
type ServiceLister interface {
	Services(ctx context.Context) ([]model.Service, error)
}

// Loader picks the catalog source. With a nil lister it serves Static.
type Loader struct {
	lister ServiceLister
}

func NewLoader(lister ServiceLister) *Loader {
	return &Loader{lister: lister}
}

// Load returns the live catalog. Unauthorized errors are returned as-is;
// any other failure returns Static together with the error.
func (l *Loader) Load(ctx context.Context) ([]model.Service, error) {
	if l.lister == nil {
		return Static(), nil
	}
	list, err := l.lister.Services(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, err
		}
		return Static(), err
	}
	return list, nil
}
