package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Company events
	EventCompanyRegistered      = "company.registered"
	EventCompanySettingsUpdated = "company.settings.updated"

	// User events
	EventUserInvited         = "user.invited"
	EventUserUpdated         = "user.updated"
	EventUserDeactivated     = "user.deactivated"
	EventUserPINChanged      = "user.pin.changed"
	EventUserPasswordChanged = "user.password.changed"

	// Time clock events
	EventTimeClockIn      = "time.clock_in"
	EventTimeClockOut     = "time.clock_out"
	EventTimeEntryEdited  = "time.entry.edited"
	EventTimeEntryDeleted = "time.entry.deleted"

	// Cash drawer events
	EventCashSessionOpened   = "cash.session.opened"
	EventCashSessionClosed   = "cash.session.closed"
	EventCashSessionEdited   = "cash.session.edited"
	EventCashSessionReviewed = "cash.session.reviewed"

	// Schedule events
	EventShiftCreated    = "schedule.shift.created"
	EventShiftUpdated    = "schedule.shift.updated"
	EventShiftDeleted    = "schedule.shift.deleted"
	EventWeekPublished   = "schedule.week.published"
	EventTemplateApplied = "schedule.template.applied"

	// Payroll events
	EventPayrollRunCreated   = "payroll.run.created"
	EventPayrollRunFinalized = "payroll.run.finalized"
	EventPayrollRunVoided    = "payroll.run.voided"

	// Leave events
	EventLeaveRequested = "leave.requested"
	EventLeaveReviewed  = "leave.reviewed"

	// Audit events
	EventAuditLogCreated = "audit.log.created"
)

// ExchangeEvents is the single topic exchange all domain events flow through.
const ExchangeEvents = "shiftline.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	CompanyID     string          `json:"company_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, companyID, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		CompanyID:     companyID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Company Events

// CompanyRegisteredEvent is published when a new company signs up
type CompanyRegisteredEvent struct {
	CompanyID  string `json:"company_id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	OwnerID    string `json:"owner_id"`
	OwnerEmail string `json:"owner_email"`
}

// CompanySettingsUpdatedEvent is published when company settings change
type CompanySettingsUpdatedEvent struct {
	CompanyID string         `json:"company_id"`
	Fields    map[string]any `json:"fields"`
}

// User Events

// UserInvitedEvent is published when a setup invitation is issued
type UserInvitedEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	InvitedBy string `json:"invited_by"`
}

// UserUpdatedEvent is published when a user is updated
type UserUpdatedEvent struct {
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// UserDeactivatedEvent is published when a user is deactivated
type UserDeactivatedEvent struct {
	UserID        string `json:"user_id"`
	DeactivatedBy string `json:"deactivated_by"`
}

// UserPasswordChangedEvent is published when a password is set through
// an OTP reset or an invitation redemption.
type UserPasswordChangedEvent struct {
	UserID string `json:"user_id"`
	Via    string `json:"via"`
}

// Time Clock Events

// TimeClockInEvent is published when an employee clocks in
type TimeClockInEvent struct {
	TimeEntryID string    `json:"time_entry_id"`
	EmployeeID  string    `json:"employee_id"`
	ClockIn     time.Time `json:"clock_in"`
	Source      string    `json:"source"`
}

// TimeClockOutEvent is published when an employee clocks out
type TimeClockOutEvent struct {
	TimeEntryID    string    `json:"time_entry_id"`
	EmployeeID     string    `json:"employee_id"`
	ClockIn        time.Time `json:"clock_in"`
	ClockOut       time.Time `json:"clock_out"`
	WorkedMinutes  int       `json:"worked_minutes"`
	BreakMinutes   int       `json:"break_minutes"`
	RoundedMinutes int       `json:"rounded_minutes"`
}

// TimeEntryEditedEvent is published when an admin edits or creates a manual entry
type TimeEntryEditedEvent struct {
	TimeEntryID string         `json:"time_entry_id"`
	EmployeeID  string         `json:"employee_id"`
	EditedBy    string         `json:"edited_by"`
	Fields      map[string]any `json:"fields"`
}

// TimeEntryDeletedEvent is published when an admin deletes an entry
type TimeEntryDeletedEvent struct {
	TimeEntryID string `json:"time_entry_id"`
	EmployeeID  string `json:"employee_id"`
	DeletedBy   string `json:"deleted_by"`
}

// Cash Drawer Events

// CashSessionOpenedEvent is published when a drawer count is recorded at clock-in
type CashSessionOpenedEvent struct {
	SessionID   string `json:"session_id"`
	TimeEntryID string `json:"time_entry_id"`
	EmployeeID  string `json:"employee_id"`
	OpenCents   int64  `json:"open_cents"`
}

// CashSessionClosedEvent is published when the closing count is recorded
type CashSessionClosedEvent struct {
	SessionID       string `json:"session_id"`
	TimeEntryID     string `json:"time_entry_id"`
	EmployeeID      string `json:"employee_id"`
	OpenCents       int64  `json:"open_cents"`
	CloseCents      int64  `json:"close_cents"`
	DifferenceCents int64  `json:"difference_cents"`
}

// CashSessionEditedEvent is published when an admin edits counted amounts
type CashSessionEditedEvent struct {
	SessionID string `json:"session_id"`
	EditedBy  string `json:"edited_by"`
	Reason    string `json:"reason"`
}

// CashSessionReviewedEvent is published when an admin marks a session reviewed
type CashSessionReviewedEvent struct {
	SessionID  string `json:"session_id"`
	ReviewedBy string `json:"reviewed_by"`
}

// Schedule Events

// ShiftCreatedEvent is published when a shift is created
type ShiftCreatedEvent struct {
	ShiftID    string `json:"shift_id"`
	EmployeeID string `json:"employee_id"`
	ShiftDate  string `json:"shift_date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

// ShiftUpdatedEvent is published when a shift is updated
type ShiftUpdatedEvent struct {
	ShiftID    string         `json:"shift_id"`
	EmployeeID string         `json:"employee_id"`
	Fields     map[string]any `json:"fields"`
}

// ShiftDeletedEvent is published when a shift is deleted
type ShiftDeletedEvent struct {
	ShiftID    string `json:"shift_id"`
	EmployeeID string `json:"employee_id"`
}

// WeekPublishedEvent is published when a bulk week commit completes
type WeekPublishedEvent struct {
	WeekStart   string `json:"week_start"`
	Created     int    `json:"created"`
	Overwritten int    `json:"overwritten"`
	Skipped     int    `json:"skipped"`
	PublishedBy string `json:"published_by"`
}

// TemplateAppliedEvent is published when a template is expanded into shifts
type TemplateAppliedEvent struct {
	TemplateID string `json:"template_id"`
	FromDate   string `json:"from_date"`
	ToDate     string `json:"to_date"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	AppliedBy  string `json:"applied_by"`
}

// Payroll Events

// PayrollRunEvent is published on payroll run lifecycle transitions
type PayrollRunEvent struct {
	RunID       string `json:"run_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Status      string `json:"status"`
	ActorID     string `json:"actor_id"`
}

// Leave Events

// LeaveRequestedEvent is published when a leave request is submitted
type LeaveRequestedEvent struct {
	RequestID  string `json:"request_id"`
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

// LeaveReviewedEvent is published when a leave request is approved or rejected
type LeaveReviewedEvent struct {
	RequestID  string `json:"request_id"`
	EmployeeID string `json:"employee_id"`
	Status     string `json:"status"`
	ReviewerID string `json:"reviewer_id"`
}

// Audit Events

// AuditLogCreatedEvent is published when an audit log entry is created
type AuditLogCreatedEvent struct {
	LogID      string         `json:"log_id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Changes    map[string]any `json:"changes,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
}
