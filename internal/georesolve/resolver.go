// Package georesolve validates coordinates and resolves addresses to
// coordinates so every record leaves the stage with a usable position.
package georesolve

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// Resolver runs the geo stage over a batch. Records flow through a bounded
// worker pool; output order matches input order.
type Resolver struct {
	geocoder domain.Geocoder // nil when geocoding is disabled
	workers  int
	logger   *slog.Logger
}

// New creates a Resolver. geocoder may be nil, in which case records without
// coordinates are rejected instead of forward-geocoded.
func New(geocoder domain.Geocoder, workers int, logger *slog.Logger) *Resolver {
	if workers < 1 {
		workers = 1
	}
	return &Resolver{geocoder: geocoder, workers: workers, logger: logger}
}

// Resolve validates and geocodes a batch. Per-record failures are returned as
// rejections; the error is non-nil only for fatal conditions such as context
// cancellation.
func (r *Resolver) Resolve(ctx context.Context, records []domain.HazardRecord) ([]domain.HazardRecord, []domain.Rejection, error) {
	type outcome struct {
		rec      domain.HazardRecord
		rejected *domain.GeoError
	}
	outcomes := make([]outcome, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, rec := range records {
		g.Go(func() error {
			resolved, err := r.resolveOne(ctx, rec)
			if err != nil {
				geoErr, ok := err.(*domain.GeoError)
				if !ok {
					return err
				}
				outcomes[i] = outcome{rejected: geoErr}
				return nil
			}
			outcomes[i] = outcome{rec: resolved}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	resolved := make([]domain.HazardRecord, 0, len(records))
	var rejections []domain.Rejection
	for _, o := range outcomes {
		if o.rejected != nil {
			rejections = append(rejections, domain.Rejection{
				Stage:    domain.StageResolve,
				RecordID: o.rejected.RecordID,
				Reason:   o.rejected.Reason,
			})
			continue
		}
		resolved = append(resolved, o.rec)
	}
	return resolved, rejections, nil
}

func (r *Resolver) resolveOne(ctx context.Context, rec domain.HazardRecord) (domain.HazardRecord, error) {
	if rec.HasCoordinates() {
		if !domain.ValidLatitude(rec.Lat) || !domain.ValidLongitude(rec.Lon) {
			return domain.HazardRecord{}, &domain.GeoError{
				RecordID: rec.ID,
				Reason:   fmt.Sprintf("coordinates out of range: %.4f,%.4f", rec.Lat, rec.Lon),
			}
		}
		r.enrichAddress(ctx, &rec)
		return rec, nil
	}

	if r.geocoder == nil {
		return domain.HazardRecord{}, &domain.GeoError{
			RecordID: rec.ID,
			Reason:   "no coordinates and geocoding is disabled",
		}
	}

	result, err := r.geocoder.ForwardGeocode(ctx, rec.Address)
	if err != nil {
		if ctx.Err() != nil {
			return domain.HazardRecord{}, ctx.Err()
		}
		return domain.HazardRecord{}, &domain.GeoError{
			RecordID: rec.ID,
			Reason:   fmt.Sprintf("forward geocode %q: %v", rec.Address, err),
		}
	}
	if result.FormattedAddress == "" {
		return domain.HazardRecord{}, &domain.GeoError{
			RecordID: rec.ID,
			Reason:   fmt.Sprintf("address %q did not geocode", rec.Address),
		}
	}
	if !domain.ValidLatitude(result.Lat) || !domain.ValidLongitude(result.Lon) {
		return domain.HazardRecord{}, &domain.GeoError{
			RecordID: rec.ID,
			Reason:   fmt.Sprintf("geocoder returned out-of-range coordinates for %q", rec.Address),
		}
	}

	rec.Lat, rec.Lon = result.Lat, result.Lon
	rec.Address = result.FormattedAddress
	// Coordinates are part of the record identity.
	rec.ID = domain.NewRecordID(rec.Type, rec.Lat, rec.Lon, rec.ObservedAt)
	return rec, nil
}

// enrichAddress fills a missing address via reverse geocoding. Enrichment is
// best effort: the record already has coordinates, so failures only log.
func (r *Resolver) enrichAddress(ctx context.Context, rec *domain.HazardRecord) {
	if rec.Address != "" || r.geocoder == nil {
		return
	}
	result, err := r.geocoder.ReverseGeocode(ctx, rec.Lat, rec.Lon)
	if err != nil {
		r.logger.Warn("reverse geocode failed",
			"record_id", rec.ID, "lat", rec.Lat, "lon", rec.Lon, "error", err)
		return
	}
	rec.Address = result.FormattedAddress
}
