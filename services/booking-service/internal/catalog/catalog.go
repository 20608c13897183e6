// Package catalog resolves service names to the descriptor snapshotted onto a booking.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrServiceNotFound = errors.New("catalog: service not found")

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	Price           string
}

type Catalog interface {
	FindServiceByName(ctx context.Context, name string) (Service, error)
}

// Static is a fixed, in-process catalog. Lookups are case-insensitive.
type Static struct {
	byName map[string]Service
}

func NewStatic(services ...Service) *Static {
	s := &Static{byName: make(map[string]Service, len(services))}
	for _, svc := range services {
		s.byName[strings.ToLower(svc.Name)] = svc
	}
	return s
}

func (s *Static) FindServiceByName(_ context.Context, name string) (Service, error) {
	svc, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Service{}, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
	}
	return svc, nil
}

// ParseStatic builds a catalog from "Name:minutes:price" entries separated by ';', for example
// "Haircut:30:25.00;Beard trim:15:10.00". The price is kept as written.
func ParseStatic(raw string) (*Static, error) {
	var services []Service
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid service entry %q (want name:minutes:price)", entry)
		}
		name := strings.TrimSpace(parts[0])
		minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if name == "" || err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid service entry %q", entry)
		}
		price := strings.TrimSpace(parts[2])
		if _, err := strconv.ParseFloat(price, 64); err != nil {
			return nil, fmt.Errorf("invalid price in service entry %q", entry)
		}
		services = append(services, Service{
			ID:              "static-" + strconv.Itoa(len(services)+1),
			Name:            name,
			DurationMinutes: minutes,
			Price:           price,
		})
	}
	return NewStatic(services...), nil
}
