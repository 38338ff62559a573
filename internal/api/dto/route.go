package dto

import "job-route-service/internal/domain"

type StopRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type OptimizeRouteRequest struct {
	StartAddress             string        `json:"start_address"`
	Stops                    []StopRequest `json:"stops"`
	TimeThresholdPercent     *float64      `json:"time_threshold_percent"`
	DistanceThresholdPercent *float64      `json:"distance_threshold_percent"`
}

type DailyRouteRequest struct {
	Date         string `json:"date"`
	StartAddress string `json:"start_address"`
}

type StopResponse struct {
	Order   int    `json:"order"`
	ID      string `json:"id"`
	Address string `json:"address"`
}

type SegmentResponse struct {
	FromStopID      string  `json:"from_stop_id,omitempty"`
	ToStopID        string  `json:"to_stop_id"`
	FromAddress     string  `json:"from_address"`
	ToAddress       string  `json:"to_address"`
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationText    string  `json:"duration_text"`
	DistanceText    string  `json:"distance_text"`
	Source          string  `json:"source"`
}

type LegResponse struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
}

type RouteResponse struct {
	Date                 string            `json:"date,omitempty"`
	StartAddress         string            `json:"start_address"`
	Stops                []StopResponse    `json:"stops"`
	Segments             []SegmentResponse `json:"segments"`
	UnresolvedLegs       []LegResponse     `json:"unresolved_legs"`
	TotalDurationMinutes float64           `json:"total_duration_minutes"`
	TotalDistanceMeters  float64           `json:"total_distance_meters"`
	TotalDurationText    string            `json:"total_duration_text"`
	TotalDistanceText    string            `json:"total_distance_text"`
	Quality              string            `json:"quality"`
}

// NewRouteResponse flattens a domain route; stop order numbers are 1-indexed.
func NewRouteResponse(r *domain.Route) RouteResponse {
	res := RouteResponse{
		StartAddress:         r.StartAddress,
		Stops:                make([]StopResponse, 0, len(r.Stops)),
		Segments:             make([]SegmentResponse, 0, len(r.Segments)),
		UnresolvedLegs:       make([]LegResponse, 0, len(r.UnresolvedLegs)),
		TotalDurationMinutes: r.TotalDurationMinutes,
		TotalDistanceMeters:  r.TotalDistanceMeters,
		TotalDurationText:    r.TotalDurationText,
		TotalDistanceText:    r.TotalDistanceText,
		Quality:              string(r.Quality),
	}

	for i, s := range r.Stops {
		res.Stops = append(res.Stops, StopResponse{Order: i + 1, ID: s.ID, Address: s.Address})
	}
	for _, s := range r.Segments {
		res.Segments = append(res.Segments, SegmentResponse{
			FromStopID:      s.FromStopID,
			ToStopID:        s.ToStopID,
			FromAddress:     s.FromAddress,
			ToAddress:       s.ToAddress,
			DurationMinutes: s.DurationMinutes,
			DistanceMeters:  s.DistanceMeters,
			DurationText:    s.DurationText,
			DistanceText:    s.DistanceText,
			Source:          string(s.Source),
		})
	}
	for _, l := range r.UnresolvedLegs {
		res.UnresolvedLegs = append(res.UnresolvedLegs, LegResponse{FromAddress: l.FromAddress, ToAddress: l.ToAddress})
	}

	return res
}
