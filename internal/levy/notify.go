package levy

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/email"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/queue"
)

// RecipientSource lists the owners to notify for a schedule.
type RecipientSource interface {
	Recipients(ctx context.Context, scheduleID uuid.UUID) ([]Recipient, error)
}

// Enqueuer queues transactional emails.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// NoticeContext names the organisation and scheme in a levy notice.
type NoticeContext struct {
	OrganizationName string
	SchemeName       string
}

// Notifier queues one levy notice per owner of each levied lot.
type Notifier struct {
	recipients RecipientSource
	mailer     Enqueuer
	logger     *zap.Logger
}

// NewNotifier creates a levy notifier.
func NewNotifier(recipients RecipientSource, mailer Enqueuer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{recipients: recipients, mailer: mailer, logger: logger}
}

// Notify enqueues levy notices for a generated schedule. Enqueue failures are counted, not returned.
func (n *Notifier) Notify(ctx context.Context, schedule *models.LevySchedule, nc NoticeContext) (queued, failed int, err error) {
	list, err := n.recipients.Recipients(ctx, schedule.ID)
	if err != nil {
		return 0, 0, err
	}
	orgID := schedule.OrganizationID
	for _, rc := range list {
		ownerID := rc.OwnerID
		err := n.mailer.EnqueueEmail(ctx, queue.EmailPayload{
			Template:  models.EmailTemplateLevyNotice,
			Recipient: rc.Email,
			Variables: map[string]string{
				"owner_name":        rc.Name,
				"organization_name": nc.OrganizationName,
				"scheme_name":       nc.SchemeName,
				"schedule_name":     schedule.Name,
				"lot_number":        strconv.Itoa(rc.LotNumber),
				"amount":            email.FormatCents(rc.AmountCents),
				"period_start":      schedule.PeriodStart.Format(time.DateOnly),
				"period_end":        schedule.PeriodEnd.Format(time.DateOnly),
			},
			OrganizationID: &orgID,
			OwnerID:        &ownerID,
		})
		if err != nil {
			failed++
			n.logger.Warn("enqueue levy notice failed", zap.Error(err), zap.String("owner_id", ownerID.String()))
			continue
		}
		queued++
	}
	return queued, failed, nil
}
