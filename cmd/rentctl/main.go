package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/ukydev/car-rental/internal/client"
	"github.com/ukydev/car-rental/internal/models"
)

const defaultAPIURL = "http://localhost:8080/api"

type app struct {
	client *client.Client
	out    io.Writer
	errOut io.Writer
	logger *log.Logger
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"register", "create an account and log in", registerCmd},
	{"login", "log in and store the token", loginCmd},
	{"logout", "forget the stored token", logoutCmd},
	{"me", "show your profile and bookings", meCmd},
	{"profile", "update your profile", profileCmd},
	{"cars", "list cars, optionally filtered", carsCmd},
	{"car", "show one car with its ratings", carCmd},
	{"quote", "price a rental without booking", quoteCmd},
	{"rate", "rate a car", rateCmd},
	{"book", "book a car", bookCmd},
	{"bookings", "list your bookings", bookingsCmd},
	{"booking", "show one booking", bookingCmd},
	{"cancel", "cancel a booking", cancelCmd},
	{"pay", "pay for a booking", payCmd},
	{"payments", "list your payments", paymentsCmd},
	{"refund", "refund a completed payment", refundCmd},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("rentctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	apiURL := fs.String("api", envOr(getenv, "RENTAL_API_URL", defaultAPIURL), "API base URL")
	tokenFile := fs.String("token-file", envOr(getenv, "RENTCTL_TOKEN_FILE", defaultTokenFile(getenv)), "where the login token is kept")
	timeout := fs.Duration("timeout", 10*time.Second, "per-request timeout")
	verbose := fs.BoolP("verbose", "v", false, "log requests to stderr")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr, fs)
		return 2
	}
	cmd, ok := lookup(rest[0])
	if !ok {
		fmt.Fprintf(stderr, "Unknown command %q\n\n", rest[0])
		usage(stderr, fs)
		return 2
	}

	logger := log.New()
	logger.SetOutput(stderr)
	logger.SetLevel(log.WarnLevel)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	a := &app{
		client: client.New(*apiURL, &client.FileTokenStore{Path: *tokenFile}, client.WithTimeout(*timeout)),
		out:    stdout,
		errOut: stderr,
		logger: logger,
	}
	logger.WithFields(log.Fields{"command": cmd.name, "api_url": *apiURL}).Debug("Running command")

	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %s\n", err)
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(stderr, "Your session has ended. Run `rentctl login` to sign in again.")
		}
		return 1
	}
	return 0
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: rentctl [global flags] <command> [flags] [args]")
	fmt.Fprintln(w, "\nCommands:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
	fmt.Fprintln(w, "\nGlobal flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultTokenFile(getenv func(string) string) string {
	home := getenv("HOME")
	if home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".rentctl", "token")
}

// newFlags builds a subcommand flag set that reports errors instead of exiting.
func newFlags(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// oneArg parses fs and returns its single positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s requires a %s", fs.Name(), what)
	}
	return fs.Arg(0), nil
}

// parseDate accepts YYYY-MM-DD (midnight UTC) or an RFC 3339 timestamp.
func parseDate(flagName, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("--%s is required", flagName)
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD or an RFC 3339 timestamp", flagName)
	}
	return t, nil
}

func registerCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("register", a)
	var req models.RegisterRequest
	fs.StringVar(&req.Name, "name", "", "full name")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Password, "password", "", "password (at least 6 characters)")
	fs.StringVar(&req.Phone, "phone", "", "phone number")
	fs.StringVar(&req.LicenseNumber, "license", "", "driving licence number")
	fs.IntVar(&req.Age, "age", 0, "age in years")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.client.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s <%s> as %s\n", resp.User.Name, resp.User.Email, resp.User.Role)
	return nil
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login", a)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s <%s>\n", resp.User.Name, resp.User.Email)
	return nil
}

func logoutCmd(_ context.Context, a *app, _ []string) error {
	if err := a.client.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func meCmd(ctx context.Context, a *app, _ []string) error {
	profile, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s>\n", profile.Name, profile.Email)
	fmt.Fprintf(a.out, "Phone:   %s\n", profile.Phone)
	fmt.Fprintf(a.out, "Role:    %s\n", profile.Role)
	if profile.LicenseNumber != "" {
		fmt.Fprintf(a.out, "License: %s\n", profile.LicenseNumber)
	}
	if profile.Age > 0 {
		fmt.Fprintf(a.out, "Age:     %d\n", profile.Age)
	}
	fmt.Fprintln(a.out)
	printBookings(a.out, profile.Bookings)
	return nil
}

func profileCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("profile", a)
	name := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone number")
	license := fs.String("license", "", "driving licence number")
	age := fs.Int("age", 0, "age in years")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var update models.ProfileUpdate
	if fs.Changed("name") {
		update.Name = name
	}
	if fs.Changed("phone") {
		update.Phone = phone
	}
	if fs.Changed("license") {
		update.LicenseNumber = license
	}
	if fs.Changed("age") {
		update.Age = age
	}
	user, err := a.client.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Profile updated for %s\n", user.Name)
	return nil
}

func carsCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("cars", a)
	var q client.CarQuery
	fs.StringVar(&q.Color, "color", "", "exact colour")
	fs.StringVar(&q.FuelType, "fuel", "", "Petrol, Diesel, Electric or Hybrid")
	fs.StringVar(&q.Transmission, "transmission", "", "Manual or Automatic")
	fs.StringVar(&q.Brand, "brand", "", "brand name")
	fs.IntVar(&q.Seats, "seats", 0, "seat count")
	minPrice := fs.Float64("min-price", 0, "minimum price per day")
	maxPrice := fs.Float64("max-price", 0, "maximum price per day")
	available := fs.Bool("available", false, "only available cars (--available=false for booked ones)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.Changed("min-price") {
		q.MinPrice = minPrice
	}
	if fs.Changed("max-price") {
		q.MaxPrice = maxPrice
	}
	if fs.Changed("available") {
		q.Available = available
	}

	cars, err := a.client.ListCars(ctx, q)
	if err != nil {
		return err
	}
	if len(cars) == 0 {
		fmt.Fprintln(a.out, "No cars match")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBRAND\tFUEL\tSEATS\tPRICE/DAY\tRATING\tAVAILABLE")
	for _, c := range cars {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.1f\t%s\n",
			c.ID.Hex(), c.Name, c.Brand, c.FuelType, c.Seats, c.PricePerDay, c.AverageRating, yesNo(c.Available))
	}
	return tw.Flush()
}

func carCmd(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlags("car", a), args, "car id")
	if err != nil {
		return err
	}
	car, err := a.client.GetCar(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%s %s %d)\n", car.Name, car.Brand, car.Model, car.Year)
	fmt.Fprintf(a.out, "Colour: %s  Fuel: %s  Transmission: %s  Seats: %d\n", car.Color, car.FuelType, car.Transmission, car.Seats)
	fmt.Fprintf(a.out, "Price:  %.2f per day  Location: %s  Available: %s\n", car.PricePerDay, car.Location, yesNo(car.Available))
	if len(car.Features) > 0 {
		fmt.Fprintf(a.out, "Features: %s\n", strings.Join(car.Features, ", "))
	}
	fmt.Fprintf(a.out, "Rating: %.1f from %d review(s)\n", car.AverageRating, len(car.Ratings))
	for _, r := range car.Ratings {
		who := r.UserName
		if who == "" {
			who = r.User.Hex()
		}
		fmt.Fprintf(a.out, "  %d/5 %s", r.Rating, who)
		if r.Review != "" {
			fmt.Fprintf(a.out, ": %s", r.Review)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

type rentalFlags struct {
	start, end string
	insurance  bool
	drivers    int
}

func (f *rentalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.start, "start", "", "start date")
	fs.StringVar(&f.end, "end", "", "end date")
	fs.BoolVar(&f.insurance, "insurance", false, "add insurance")
	fs.IntVar(&f.drivers, "drivers", 0, "additional drivers")
}

func (f *rentalFlags) dates() (time.Time, time.Time, error) {
	start, err := parseDate("start", f.start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate("end", f.end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func quoteCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("quote", a)
	var rf rentalFlags
	rf.register(fs)
	carID, err := oneArg(fs, args, "car id")
	if err != nil {
		return err
	}
	start, end, err := rf.dates()
	if err != nil {
		return err
	}
	quote, err := a.client.Quote(ctx, carID, start, end, rf.insurance, rf.drivers)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d day(s)\n", quote.TotalDays)
	fmt.Fprintf(a.out, "  Base:           %8.2f\n", quote.BaseAmount)
	fmt.Fprintf(a.out, "  Insurance:      %8.2f\n", quote.InsuranceAmount)
	fmt.Fprintf(a.out, "  Extra drivers:  %8.2f\n", quote.ExtraDriverAmount)
	fmt.Fprintf(a.out, "  Total:          %8.2f\n", quote.TotalAmount)
	return nil
}

func rateCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("rate", a)
	rating := fs.Int("rating", 0, "1 to 5")
	review := fs.String("review", "", "optional review text")
	carID, err := oneArg(fs, args, "car id")
	if err != nil {
		return err
	}
	car, err := a.client.RateCar(ctx, carID, *rating, *review)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Thanks! %s is now rated %.1f\n", car.Name, car.AverageRating)
	return nil
}

func bookCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("book", a)
	var rf rentalFlags
	rf.register(fs)
	pickup := fs.String("pickup", "", "pickup location")
	dropoff := fs.String("dropoff", "", "dropoff location")
	requests := fs.String("requests", "", "special requests")
	carID, err := oneArg(fs, args, "car id")
	if err != nil {
		return err
	}
	start, end, err := rf.dates()
	if err != nil {
		return err
	}
	booking, err := a.client.CreateBooking(ctx, models.BookingRequest{
		CarID:             carID,
		StartDate:         &start,
		EndDate:           &end,
		PickupLocation:    *pickup,
		DropoffLocation:   *dropoff,
		AdditionalDrivers: rf.drivers,
		Insurance:         rf.insurance,
		SpecialRequests:   *requests,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Booking %s created: %d day(s), total %.2f, status %s\n",
		booking.ID.Hex(), booking.TotalDays, booking.TotalAmount, booking.Status)
	fmt.Fprintf(a.out, "Pay with: rentctl pay %s --method UPI ...\n", booking.ID.Hex())
	return nil
}

func bookingsCmd(ctx context.Context, a *app, _ []string) error {
	bookings, err := a.client.MyBookings(ctx)
	if err != nil {
		return err
	}
	printBookings(a.out, bookings)
	return nil
}

func printBookings(w io.Writer, bookings []models.BookingSummary) {
	if len(bookings) == 0 {
		fmt.Fprintln(w, "No bookings yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAR\tFROM\tTO\tTOTAL\tSTATUS\tPAYMENT")
	for _, b := range bookings {
		car := b.CarID.Hex()
		if b.Car != nil {
			car = b.Car.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n", b.ID.Hex(), car,
			b.StartDate.Format("2006-01-02"), b.EndDate.Format("2006-01-02"), b.TotalAmount, b.Status, b.PaymentStatus)
	}
	tw.Flush()
}

func bookingCmd(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlags("booking", a), args, "booking id")
	if err != nil {
		return err
	}
	b, err := a.client.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Booking %s\n", b.ID.Hex())
	if b.Car != nil {
		fmt.Fprintf(a.out, "Car:      %s (%s %s)\n", b.Car.Name, b.Car.Brand, b.Car.Model)
	}
	fmt.Fprintf(a.out, "Dates:    %s to %s (%d day(s))\n", b.StartDate.Format("2006-01-02"), b.EndDate.Format("2006-01-02"), b.TotalDays)
	fmt.Fprintf(a.out, "Pickup:   %s\n", b.PickupLocation)
	fmt.Fprintf(a.out, "Dropoff:  %s\n", b.DropoffLocation)
	fmt.Fprintf(a.out, "Extras:   insurance %s, %d additional driver(s)\n", yesNo(b.Insurance), b.AdditionalDrivers)
	fmt.Fprintf(a.out, "Total:    %.2f\n", b.TotalAmount)
	fmt.Fprintf(a.out, "Status:   %s (payment %s)\n", b.Status, b.PaymentStatus)
	if b.PaymentID != "" {
		fmt.Fprintf(a.out, "Txn:      %s\n", b.PaymentID)
	}
	return nil
}

func cancelCmd(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlags("cancel", a), args, "booking id")
	if err != nil {
		return err
	}
	b, err := a.client.UpdateBookingStatus(ctx, id, models.BookingCancelled)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Booking %s is now %s\n", b.ID.Hex(), b.Status)
	return nil
}

func payCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("pay", a)
	method := fs.String("method", string(models.MethodUPI), "UPI, CREDIT_CARD or DEBIT_CARD")
	var billing models.Billing
	fs.StringVar(&billing.Name, "name", "", "billing name")
	fs.StringVar(&billing.Email, "email", "", "billing email")
	fs.StringVar(&billing.Phone, "phone", "", "billing phone")
	var details models.CardOrUPIDetails
	fs.StringVar(&details.CardNumber, "card", "", "card number")
	fs.StringVar(&details.ExpiryDate, "expiry", "", "card expiry (MM/YY)")
	fs.StringVar(&details.CVV, "cvv", "", "card security code")
	fs.StringVar(&details.UpiID, "upi", "", "UPI id")
	fs.StringVar(&details.BankName, "bank", "", "issuing bank")
	bookingID, err := oneArg(fs, args, "booking id")
	if err != nil {
		return err
	}

	payment, err := a.client.InitializePayment(ctx, models.InitializePaymentRequest{
		BookingID:      bookingID,
		PaymentMethod:  models.PaymentMethod(strings.ToUpper(*method)),
		BillingDetails: &billing,
	})
	if err != nil {
		return err
	}
	a.logger.WithFields(log.Fields{
		"payment_id":     payment.ID.Hex(),
		"transaction_id": payment.TransactionID,
	}).Debug("Payment initialized")

	payment, err = a.client.ProcessPayment(ctx, payment.ID.Hex(), details)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Paid %.2f by %s (transaction %s)\n", payment.Amount, payment.PaymentMethod, payment.TransactionID)
	fmt.Fprintf(a.out, "Payment id: %s\n", payment.ID.Hex())
	return nil
}

func paymentsCmd(ctx context.Context, a *app, _ []string) error {
	payments, err := a.client.PaymentHistory(ctx)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		fmt.Fprintln(a.out, "No payments yet")
		return nil
	}
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].CreatedAt.After(payments[j].CreatedAt) })
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRANSACTION\tMETHOD\tAMOUNT\tSTATUS\tCAR")
	for _, p := range payments {
		car := "-"
		if p.Booking != nil && p.Booking.Car != nil {
			car = p.Booking.Car.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", p.ID.Hex(), p.TransactionID, p.PaymentMethod, p.Amount, p.Status, car)
	}
	return tw.Flush()
}

func refundCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("refund", a)
	reason := fs.String("reason", "", "why the refund is requested")
	id, err := oneArg(fs, args, "payment id")
	if err != nil {
		return err
	}
	p, err := a.client.RefundPayment(ctx, id, *reason)
	if err != nil {
		return err
	}
	if p.RefundDetails != nil {
		fmt.Fprintf(a.out, "Refunded %.2f (refund %s)\n", p.RefundDetails.RefundAmount, p.RefundDetails.RefundID)
		return nil
	}
	fmt.Fprintf(a.out, "Payment %s is now %s\n", p.ID.Hex(), p.Status)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
