// Package geo resolves a client IP to the closest healthy node by
// great-circle distance, per spec.md §4.3.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"cdn-edge/internal/domain"
	"cdn-edge/internal/structures"
)

const (
	earthRadiusKM = 6371.0
	lookupBaseURL = "https://ipapi.co"
	lookupTimeout = 3 * time.Second

	// lookupCacheSize bounds how many distinct client IPs' coordinates
	// are cached, trading a little staleness for far fewer ipapi.co
	// calls from repeat visitors.
	lookupCacheSize = 4096
)

type geoLookupResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type coords struct {
	lat, lon float64
}

// Router finds the closest active node to a client IP.
type Router struct {
	apiKey string
	client *http.Client
	cache  *structures.CompactMap
	log    *zap.Logger
}

// NewRouter builds a Router that queries ipapi.co with apiKey.
func NewRouter(apiKey string, log *zap.Logger) *Router {
	return &Router{
		apiKey: apiKey,
		client: &http.Client{Timeout: lookupTimeout},
		cache:  structures.NewCompactMap(lookupCacheSize),
		log:    log,
	}
}

// FindClosest resolves clientIP to coordinates and returns the active
// node with minimum great-circle distance. Returns (Node{}, false) when
// geolocation fails (a "geolocation-miss", never treated as an error) —
// callers fall back to origin.
func (r *Router) FindClosest(ctx context.Context, clientIP string, active domain.ActiveNodeSet) (domain.Node, bool) {
	lat, lon, ok := r.lookup(ctx, clientIP)
	if !ok {
		return domain.Node{}, false
	}

	closest, minDist, found := closestNode(lat, lon, active)
	if !found {
		return domain.Node{}, false
	}

	r.log.Info("resolved closest node", zap.String("endpoint", closest.Endpoint), zap.Float64("distance_km", minDist))
	return closest, true
}

// closestNode returns the active node with minimum great-circle
// distance to (lat, lon). Ties go to whichever node Go's map iteration
// visits first, matching ActiveNodeSet's documented iteration-order
// caveat.
func closestNode(lat, lon float64, active domain.ActiveNodeSet) (domain.Node, float64, bool) {
	var closest domain.Node
	var minDist float64
	found := false
	for _, n := range active {
		d := haversineKM(lat, lon, n.Latitude, n.Longitude)
		if !found || d < minDist {
			minDist = d
			closest = n
			found = true
		}
	}
	return closest, minDist, found
}

func (r *Router) lookup(ctx context.Context, clientIP string) (lat, lon float64, ok bool) {
	if v, found := r.cache.Get(clientIP); found {
		c := v.(coords)
		return c.lat, c.lon, true
	}

	lat, lon, ok = r.fetch(ctx, clientIP)
	if ok {
		r.cache.Set(clientIP, coords{lat: lat, lon: lon})
	}
	return lat, lon, ok
}

func (r *Router) fetch(ctx context.Context, clientIP string) (lat, lon float64, ok bool) {
	u := fmt.Sprintf("%s/%s/json/?key=%s", lookupBaseURL, url.PathEscape(clientIP), url.QueryEscape(r.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		r.log.Warn("geolocation request build failed", zap.Error(err))
		return 0, 0, false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("geolocation lookup failed", zap.String("ip", clientIP), zap.Error(err))
		return 0, 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Warn("geolocation lookup returned non-200", zap.Int("status", resp.StatusCode))
		return 0, 0, false
	}

	var body geoLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.log.Warn("geolocation response decode failed", zap.Error(err))
		return 0, 0, false
	}

	if body.Latitude == nil || body.Longitude == nil {
		r.log.Warn("geolocation lookup missing coordinates", zap.String("ip", clientIP))
		return 0, 0, false
	}

	return *body.Latitude, *body.Longitude, true
}

// haversineKM returns the great-circle distance between two lat/lon
// pairs in kilometers.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}
