// Package client is a typed wrapper around the car-rental HTTP API. It
// attaches the stored bearer token to every request and forgets it when the
// server answers 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ukydev/car-rental/internal/models"
)

// ErrUnauthorized matches any APIError with status 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError carries the server's message verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client talks to one API base URL such as http://localhost:8080/api.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client. A nil store keeps the token in memory.
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Count   *int            `json:"count"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token, err := c.tokens.Load()
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.tokens.Clear(); err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}
	}
	if resp.StatusCode >= 400 || (decodeErr == nil && !env.Success) {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", req)
}

// Login stores the token issued for the credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", models.LoginRequest{Email: email, Password: password})
}

func (c *Client) authenticate(ctx context.Context, path string, body interface{}) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(resp.Token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return &resp, nil
}

// Logout forgets the stored token.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// LoggedIn reports whether a token is stored.
func (c *Client) LoggedIn() bool {
	token, err := c.tokens.Load()
	return err == nil && token != ""
}

// Me returns the caller's profile and bookings.
func (c *Client) Me(ctx context.Context) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile changes the caller's profile.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPut, "/auth/update-profile", nil, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CarQuery filters the catalog. Zero values are omitted.
type CarQuery struct {
	Color        string
	FuelType     string
	Transmission string
	Brand        string
	Seats        int
	MinPrice     *float64
	MaxPrice     *float64
	Available    *bool
}

// Values encodes the query parameters the API expects.
func (q CarQuery) Values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("color", q.Color)
	set("fuelType", q.FuelType)
	set("transmission", q.Transmission)
	set("brand", q.Brand)
	if q.Seats > 0 {
		v.Set("seats", strconv.Itoa(q.Seats))
	}
	if q.MinPrice != nil {
		v.Set("minPrice", strconv.FormatFloat(*q.MinPrice, 'f', -1, 64))
	}
	if q.MaxPrice != nil {
		v.Set("maxPrice", strconv.FormatFloat(*q.MaxPrice, 'f', -1, 64))
	}
	if q.Available != nil {
		v.Set("available", strconv.FormatBool(*q.Available))
	}
	return v
}

// ListCars returns the cars matching q.
func (c *Client) ListCars(ctx context.Context, q CarQuery) ([]models.Car, error) {
	var cars []models.Car
	if err := c.do(ctx, http.MethodGet, "/cars", q.Values(), nil, &cars); err != nil {
		return nil, err
	}
	return cars, nil
}

// GetCar returns one car with its ratings.
func (c *Client) GetCar(ctx context.Context, id string) (*models.Car, error) {
	var car models.Car
	if err := c.do(ctx, http.MethodGet, "/cars/"+url.PathEscape(id), nil, nil, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

// CreateCar adds a car. Admin only.
func (c *Client) CreateCar(ctx context.Context, in models.CarInput) (*models.Car, error) {
	var car models.Car
	if err := c.do(ctx, http.MethodPost, "/cars", nil, in, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

// UpdateCar changes the given fields. Admin only.
func (c *Client) UpdateCar(ctx context.Context, id string, in models.CarInput) (*models.Car, error) {
	var car models.Car
	if err := c.do(ctx, http.MethodPut, "/cars/"+url.PathEscape(id), nil, in, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

// DeleteCar removes a car. Admin only.
func (c *Client) DeleteCar(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/cars/"+url.PathEscape(id), nil, nil, nil)
}

// RateCar submits the caller's rating.
func (c *Client) RateCar(ctx context.Context, id string, rating int, review string) (*models.Car, error) {
	var car models.Car
	body := models.RatingRequest{Rating: rating, Review: review}
	if err := c.do(ctx, http.MethodPost, "/cars/"+url.PathEscape(id)+"/ratings", nil, body, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

// Quote prices a prospective rental.
func (c *Client) Quote(ctx context.Context, carID string, start, end time.Time, insurance bool, drivers int) (*models.Quote, error) {
	q := url.Values{}
	q.Set("startDate", start.UTC().Format(time.RFC3339))
	q.Set("endDate", end.UTC().Format(time.RFC3339))
	q.Set("insurance", strconv.FormatBool(insurance))
	q.Set("additionalDrivers", strconv.Itoa(drivers))
	var quote models.Quote
	if err := c.do(ctx, http.MethodGet, "/cars/"+url.PathEscape(carID)+"/quote", q, nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CreateBooking reserves a car.
func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	var booking models.Booking
	if err := c.do(ctx, http.MethodPost, "/bookings", nil, req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// MyBookings lists the caller's bookings.
func (c *Client) MyBookings(ctx context.Context) ([]models.BookingSummary, error) {
	var bookings []models.BookingSummary
	if err := c.do(ctx, http.MethodGet, "/bookings/my-bookings", nil, nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetBooking returns one of the caller's bookings.
func (c *Client) GetBooking(ctx context.Context, id string) (*models.BookingDetail, error) {
	var booking models.BookingDetail
	if err := c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(id), nil, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBookingStatus requests a status change; only cancellation is accepted.
func (c *Client) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) (*models.Booking, error) {
	var booking models.Booking
	body := models.StatusUpdateRequest{Status: status}
	if err := c.do(ctx, http.MethodPatch, "/bookings/"+url.PathEscape(id)+"/status", nil, body, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CompleteBooking closes a confirmed booking. Admin only.
func (c *Client) CompleteBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := c.do(ctx, http.MethodPost, "/admin/bookings/"+url.PathEscape(id)+"/complete", nil, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// InitializePayment opens a pending payment.
func (c *Client) InitializePayment(ctx context.Context, req models.InitializePaymentRequest) (*models.Payment, error) {
	var payment models.Payment
	if err := c.do(ctx, http.MethodPost, "/payments/initialize", nil, req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ProcessPayment settles a pending payment.
func (c *Client) ProcessPayment(ctx context.Context, id string, details models.CardOrUPIDetails) (*models.Payment, error) {
	var payment models.Payment
	body := models.ProcessPaymentRequest{PaymentDetails: details}
	if err := c.do(ctx, http.MethodPost, "/payments/process/"+url.PathEscape(id), nil, body, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// RefundPayment reverses a completed payment.
func (c *Client) RefundPayment(ctx context.Context, id, reason string) (*models.Payment, error) {
	var payment models.Payment
	body := models.RefundRequest{Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(id)+"/refund", nil, body, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPayment returns one of the caller's payments.
func (c *Client) GetPayment(ctx context.Context, id string) (*models.PaymentDetail, error) {
	var payment models.PaymentDetail
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// PaymentHistory lists the caller's payments.
func (c *Client) PaymentHistory(ctx context.Context) ([]models.PaymentDetail, error) {
	var payments []models.PaymentDetail
	if err := c.do(ctx, http.MethodGet, "/payments", nil, nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}
