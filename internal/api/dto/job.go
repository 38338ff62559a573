package dto

type JobResponse struct {
	ID            string `json:"id"`
	CustomerName  string `json:"customer_name"`
	Address       string `json:"address"`
	ScheduledDate string `json:"scheduled_date"`
	RouteOrder    *int   `json:"route_order"`
}

type ListJobsResponse struct {
	Date string        `json:"date"`
	Jobs []JobResponse `json:"jobs"`
}
