// Package dbtest provides in-memory implementations of the db collection
// interfaces for service and handler tests.
package dbtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store bundles the fakes so tests can seed and inspect them directly.
type Store struct {
	Users    *Users
	Cars     *Cars
	Bookings *Bookings
	Payments *Payments
	Tx       *TxRunner
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		Users:    &Users{docs: map[primitive.ObjectID]models.User{}},
		Cars:     &Cars{docs: map[primitive.ObjectID]models.Car{}},
		Bookings: &Bookings{docs: map[primitive.ObjectID]models.Booking{}},
		Payments: &Payments{docs: map[primitive.ObjectID]models.Payment{}},
		Tx:       &TxRunner{},
	}
}

// DB exposes the fakes through the db.Store interfaces.
func (s *Store) DB() *db.Store {
	return &db.Store{Users: s.Users, Cars: s.Cars, Bookings: s.Bookings, Payments: s.Payments, Tx: s.Tx}
}

func stamp() time.Time {
	return time.Now().UTC()
}

// TxRunner serialises transactions. Writes are not rolled back when fn fails.
type TxRunner struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (r *TxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return r.Err
	}
	return fn(ctx)
}

// Users is an in-memory db.UserCollection. A non-nil Err fails every call.
type Users struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]models.User
	Err  error
}

func (u *Users) Insert(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range u.docs {
		if existing.Email == user.Email {
			return db.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = stamp()
	user.UpdatedAt = user.CreatedAt
	if user.Rentals == nil {
		user.Rentals = []primitive.ObjectID{}
	}
	u.docs[user.ID] = cloneUser(*user)
	return nil
}

func (u *Users) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	user, ok := u.docs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := cloneUser(user)
	return &out, nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range u.docs {
		if user.Email == email {
			out := cloneUser(user)
			return &out, nil
		}
	}
	return nil, db.ErrNotFound
}

func (u *Users) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	out := make(map[primitive.ObjectID]*models.User, len(ids))
	for _, id := range ids {
		if user, ok := u.docs[id]; ok {
			c := cloneUser(user)
			out[id] = &c
		}
	}
	return out, nil
}

func (u *Users) Update(_ context.Context, id primitive.ObjectID, update models.ProfileUpdate) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	user, ok := u.docs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Phone != nil {
		user.Phone = *update.Phone
	}
	if update.LicenseNumber != nil {
		user.LicenseNumber = *update.LicenseNumber
	}
	if update.Age != nil {
		user.Age = *update.Age
	}
	user.UpdatedAt = stamp()
	u.docs[id] = user
	out := cloneUser(user)
	return &out, nil
}

func (u *Users) AddBooking(_ context.Context, userID, bookingID primitive.ObjectID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	user, ok := u.docs[userID]
	if !ok {
		return db.ErrNotFound
	}
	for _, id := range user.Rentals {
		if id == bookingID {
			return nil
		}
	}
	user.Rentals = append(append([]primitive.ObjectID{}, user.Rentals...), bookingID)
	u.docs[userID] = user
	return nil
}

func cloneUser(u models.User) models.User {
	u.Rentals = append([]primitive.ObjectID{}, u.Rentals...)
	return u
}

// Cars is an in-memory db.CarCollection.
type Cars struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]models.Car
	Err  error
}

func (c *Cars) Insert(_ context.Context, car *models.Car) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if car.ID.IsZero() {
		car.ID = primitive.NewObjectID()
	}
	if car.CreatedAt.IsZero() {
		car.CreatedAt = stamp()
	}
	car.UpdatedAt = stamp()
	if car.Ratings == nil {
		car.Ratings = []models.Rating{}
	}
	car.RecomputeAverage()
	c.docs[car.ID] = cloneCar(*car)
	return nil
}

func (c *Cars) FindByID(_ context.Context, id primitive.ObjectID) (*models.Car, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	car, ok := c.docs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := cloneCar(car)
	return &out, nil
}

func (c *Cars) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Car, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	out := make(map[primitive.ObjectID]*models.Car, len(ids))
	for _, id := range ids {
		if car, ok := c.docs[id]; ok {
			cp := cloneCar(car)
			cp.Ratings = nil
			out[id] = &cp
		}
	}
	return out, nil
}

func (c *Cars) Find(_ context.Context, filter db.CarFilter) ([]models.Car, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	cars := []models.Car{}
	for _, car := range c.docs {
		if !matches(car, filter) {
			continue
		}
		cp := cloneCar(car)
		cp.Ratings = nil
		cars = append(cars, cp)
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].CreatedAt.After(cars[j].CreatedAt) })
	return cars, nil
}

func matches(car models.Car, f db.CarFilter) bool {
	if f.Color != "" && !strings.Contains(strings.ToLower(car.Color), strings.ToLower(f.Color)) {
		return false
	}
	if f.FuelType != "" && car.FuelType != f.FuelType {
		return false
	}
	if f.Transmission != "" && car.Transmission != f.Transmission {
		return false
	}
	if f.Brand != "" && !strings.EqualFold(car.Brand, f.Brand) {
		return false
	}
	if f.Seats > 0 && car.Seats != f.Seats {
		return false
	}
	if f.Available != nil && car.Available != *f.Available {
		return false
	}
	if f.MinPrice != nil && car.PricePerDay < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && car.PricePerDay > *f.MaxPrice {
		return false
	}
	return true
}

func (c *Cars) Update(_ context.Context, car *models.Car) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	existing, ok := c.docs[car.ID]
	if !ok {
		return db.ErrNotFound
	}
	updated := cloneCar(*car)
	updated.Ratings = existing.Ratings
	updated.AverageRating = existing.AverageRating
	updated.BookingSeq = existing.BookingSeq
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = stamp()
	car.UpdatedAt = updated.UpdatedAt
	c.docs[car.ID] = updated
	return nil
}

func (c *Cars) Delete(_ context.Context, id primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if _, ok := c.docs[id]; !ok {
		return db.ErrNotFound
	}
	delete(c.docs, id)
	return nil
}

func (c *Cars) SetAvailability(_ context.Context, id primitive.ObjectID, available bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	car, ok := c.docs[id]
	if !ok {
		return db.ErrNotFound
	}
	car.Available = available
	car.UpdatedAt = stamp()
	c.docs[id] = car
	return nil
}

func (c *Cars) AddRating(_ context.Context, id primitive.ObjectID, rating models.Rating) (*models.Car, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	car, ok := c.docs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if car.HasRatingFrom(rating.User) {
		return nil, db.ErrDuplicate
	}
	rating.UserName = ""
	car.Ratings = append(append([]models.Rating{}, car.Ratings...), rating)
	car.RecomputeAverage()
	car.UpdatedAt = stamp()
	c.docs[id] = car
	out := cloneCar(car)
	return &out, nil
}

func (c *Cars) TouchForBooking(_ context.Context, id primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	car, ok := c.docs[id]
	if !ok {
		return db.ErrNotFound
	}
	car.BookingSeq++
	c.docs[id] = car
	return nil
}

func cloneCar(c models.Car) models.Car {
	c.Images = append([]string(nil), c.Images...)
	c.Features = append([]string(nil), c.Features...)
	c.Ratings = append([]models.Rating(nil), c.Ratings...)
	return c
}

// Bookings is an in-memory db.BookingCollection.
type Bookings struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]models.Booking
	Err  error
}

func (b *Bookings) Insert(_ context.Context, booking *models.Booking) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	if booking.ID.IsZero() {
		booking.ID = primitive.NewObjectID()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = stamp()
	}
	booking.UpdatedAt = stamp()
	b.docs[booking.ID] = *booking
	return nil
}

func (b *Bookings) FindByID(_ context.Context, id primitive.ObjectID) (*models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	booking, ok := b.docs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &booking, nil
}

func (b *Bookings) FindByUser(_ context.Context, userID primitive.ObjectID) ([]models.Booking, error) {
	return b.collect(func(bk models.Booking) bool { return bk.UserID == userID })
}

func (b *Bookings) FindOverlapping(_ context.Context, carID primitive.ObjectID, start, end time.Time) ([]models.Booking, error) {
	return b.collect(func(bk models.Booking) bool {
		return bk.CarID == carID && bk.Status.Active() &&
			!bk.StartDate.After(end) && !bk.EndDate.Before(start)
	})
}

func (b *Bookings) CountActiveForCar(_ context.Context, carID primitive.ObjectID) (int64, error) {
	found, err := b.collect(func(bk models.Booking) bool { return bk.CarID == carID && bk.Status.Active() })
	return int64(len(found)), err
}

func (b *Bookings) UpdateStatus(_ context.Context, id primitive.ObjectID, from, to models.BookingStatus) (*models.Booking, error) {
	return b.mutate(id, func(bk *models.Booking) bool {
		if bk.Status != from {
			return false
		}
		bk.Status = to
		return true
	})
}

func (b *Bookings) MarkPaid(_ context.Context, id primitive.ObjectID, paymentID string) (*models.Booking, error) {
	return b.mutate(id, func(bk *models.Booking) bool {
		if !bk.Status.Active() {
			return false
		}
		bk.Status = models.BookingConfirmed
		bk.PaymentStatus = models.PaymentCompleted
		bk.PaymentID = paymentID
		return true
	})
}

func (b *Bookings) SetPaymentStatus(_ context.Context, id primitive.ObjectID, status models.PaymentStatus) error {
	_, err := b.mutate(id, func(bk *models.Booking) bool {
		bk.PaymentStatus = status
		return true
	})
	return err
}

func (b *Bookings) mutate(id primitive.ObjectID, apply func(*models.Booking) bool) (*models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	booking, ok := b.docs[id]
	if !ok || !apply(&booking) {
		return nil, db.ErrNotFound
	}
	booking.UpdatedAt = stamp()
	b.docs[id] = booking
	return &booking, nil
}

func (b *Bookings) collect(keep func(models.Booking) bool) ([]models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	out := []models.Booking{}
	for _, booking := range b.docs {
		if keep(booking) {
			out = append(out, booking)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Payments is an in-memory db.PaymentCollection enforcing the same unique
// keys as the Mongo indexes.
type Payments struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]models.Payment
	Err  error
}

func (p *Payments) Insert(_ context.Context, payment *models.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	for _, existing := range p.docs {
		if existing.BookingID == payment.BookingID {
			return db.ErrDuplicate
		}
		if payment.TransactionID != "" && existing.TransactionID == payment.TransactionID {
			return db.ErrDuplicate
		}
	}
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = stamp()
	}
	payment.UpdatedAt = stamp()
	p.docs[payment.ID] = clonePayment(*payment)
	return nil
}

func (p *Payments) FindByID(_ context.Context, id primitive.ObjectID) (*models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	payment, ok := p.docs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := clonePayment(payment)
	return &out, nil
}

func (p *Payments) FindByBooking(_ context.Context, bookingID primitive.ObjectID) (*models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	for _, payment := range p.docs {
		if payment.BookingID == bookingID {
			out := clonePayment(payment)
			return &out, nil
		}
	}
	return nil, db.ErrNotFound
}

func (p *Payments) FindByUser(_ context.Context, userID primitive.ObjectID) ([]models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	out := []models.Payment{}
	for _, payment := range p.docs {
		if payment.UserID == userID {
			out = append(out, clonePayment(payment))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (p *Payments) Update(_ context.Context, payment *models.Payment, from models.PaymentStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	existing, ok := p.docs[payment.ID]
	if !ok || existing.Status != from {
		return db.ErrNotFound
	}
	existing.Status = payment.Status
	if payment.PaymentDetails != nil {
		existing.PaymentDetails = payment.PaymentDetails
	}
	if payment.RefundDetails != nil {
		existing.RefundDetails = payment.RefundDetails
	}
	existing.UpdatedAt = stamp()
	payment.UpdatedAt = existing.UpdatedAt
	p.docs[payment.ID] = clonePayment(existing)
	return nil
}

func clonePayment(p models.Payment) models.Payment {
	if p.PaymentDetails != nil {
		d := *p.PaymentDetails
		p.PaymentDetails = &d
	}
	if p.RefundDetails != nil {
		r := *p.RefundDetails
		p.RefundDetails = &r
	}
	if p.Billing.Address != nil {
		a := *p.Billing.Address
		p.Billing.Address = &a
	}
	return p
}
