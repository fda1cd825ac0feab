package hzpp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Kronicaler/hzpp-delay-stats/internal/config"
	"github.com/Kronicaler/hzpp-delay-stats/internal/model"
)

// Client talks to the two HZPP upstreams: the planner API serving today's
// timetable as JSON, and the delay endpoint serving per-train status pages.
type Client struct {
	cfg    *config.Config
	client *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// TrainStatus fetches and parses the current delay report for one train
// number. No retries here; the retry policy belongs to the route monitor.
func (c *Client) TrainStatus(ctx context.Context, routeNumber int) (TrainStatus, error) {
	body, err := c.fetchDelayBody(ctx, routeNumber)
	if err != nil {
		return TrainStatus{}, err
	}
	return ParseStatus(body)
}

func (c *Client) fetchDelayBody(ctx context.Context, routeNumber int) (string, error) {
	url := fmt.Sprintf("%s?trainId=%d", c.cfg.DelayURL, routeNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch delay page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("delay endpoint returned status %d for train %d", resp.StatusCode, routeNumber)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read delay page: %w", err)
	}
	return string(body), nil
}

// Stations fetches the station reference data from the planner API.
func (c *Client) Stations(ctx context.Context) ([]model.Station, error) {
	var payload []PlannerStation
	if err := c.getJSON(ctx, c.cfg.PlannerURL+"/getStops.php", &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch stations: %w", err)
	}

	stations := make([]model.Station, 0, len(payload))
	for _, ps := range payload {
		stations = append(stations, ConvertStation(ps))
	}
	return stations, nil
}

// Routes fetches the timetable for the given service day and converts it
// to domain routes. Routes the planner serves in a shape we cannot use
// are logged and skipped rather than failing the whole batch.
func (c *Client) Routes(ctx context.Context, day time.Time) ([]model.Route, error) {
	url := fmt.Sprintf("%s/getRoutes.php?date=%s", c.cfg.PlannerURL, day.In(Zagreb).Format("20060102"))

	var payload []PlannerRoute
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch routes: %w", err)
	}

	routes := make([]model.Route, 0, len(payload))
	for _, pr := range payload {
		route, err := ConvertRoute(pr, day)
		if err != nil {
			slog.Error("skipping unusable planner route", "route", pr.RouteID, "error", err)
			continue
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}
