package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stafflane/be-hr-requests/internal/client"
	"github.com/stafflane/be-hr-requests/internal/errors"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// TemplateSource loads active templates by routing name.
type TemplateSource interface {
	GetActiveByName(ctx context.Context, name string) (*repository.NotificationTemplate, error)
}

// RecordStore persists in-app notification rows.
type RecordStore interface {
	Create(ctx context.Context, rec *repository.NotificationRecord) (string, error)
}

// EventPublisher ships the consolidated message to the delivery pipeline.
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, event *client.RequestEvent)
}

// Dispatcher is the notification pipeline: route the event to templates,
// resolve who should receive each one, render and publish, and mirror the
// message into the in-app feed. Every failure inside the pipeline is logged
// and skipped; a committed approval action is never rolled back or failed
// because a message could not go out.
type Dispatcher struct {
	router     *Router
	resolver   *Resolver
	classifier *DestinationClassifier
	templates  TemplateSource
	records    RecordStore
	publisher  EventPublisher
	baseURL    string
	log        *logger.Logger
}

// NewDispatcher wires the pipeline.
func NewDispatcher(
	router *Router,
	resolver *Resolver,
	classifier *DestinationClassifier,
	templates TemplateSource,
	records RecordStore,
	publisher EventPublisher,
	baseURL string,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		router:     router,
		resolver:   resolver,
		classifier: classifier,
		templates:  templates,
		records:    records,
		publisher:  publisher,
		baseURL:    baseURL,
		log:        log,
	}
}

// DispatchSubmitted fires the initial-approver notification for a freshly
// created request.
func (d *Dispatcher) DispatchSubmitted(ctx context.Context, req *repository.Request) {
	eventType := fmt.Sprintf("%s_submitted", req.EntityType)
	actor := workflow.Actor{ID: req.RequestorID, Name: req.RequestorName, Role: "Requestor"}
	d.dispatch(ctx, req, eventType, "", actor, "")
}

// DispatchTransition fires the notifications for a committed status
// transition.
func (d *Dispatcher) DispatchTransition(ctx context.Context, t *workflow.Transition, actor workflow.Actor, comments string) {
	// The transition snapshot carries the pre-action status; overlay the
	// committed one.
	cur := *t.Request
	cur.Status = t.To

	eventType := fmt.Sprintf("%s_%s", t.EntityType, eventName(&cur, t.Action))
	d.dispatch(ctx, &cur, eventType, t.From, actor, comments)
}

func eventName(req *repository.Request, action workflow.Action) string {
	if action == workflow.ActionReject {
		return "rejected"
	}
	if req.Status == workflow.StatusCompleted || req.Status == workflow.StatusProcessed {
		return "completed"
	}
	return "approved"
}

func (d *Dispatcher) dispatch(ctx context.Context, req *repository.Request, eventType, previousStatus string, actor workflow.Actor, comments string) {
	log := d.log.With().
		Str("entity_id", req.ID).
		Str("event_type", eventType).
		Str("status", req.Status).
		Logger()

	for _, name := range d.router.TemplatesFor(eventType, req.Status) {
		tpl, err := d.templates.GetActiveByName(ctx, name)
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				log.Warn().Str("template", name).Msg("notification: no active template, skipping")
			} else {
				log.Error().Err(err).Str("template", name).Msg("notification: template lookup failed, skipping")
			}
			continue
		}

		approvers, skip := d.resolveApprovers(ctx, req, tpl, &log)
		if skip {
			continue
		}

		recipients := BuildRecipients(tpl.RecipientType, approvers, RequestorRecipient(req))
		if recipients.Empty() {
			log.Warn().Str("template", name).Msg("notification: no recipients resolved, skipping")
			continue
		}
		if tpl.RecipientType == repository.RecipientApprover && len(recipients.CC) == 0 {
			log.Warn().Str("template", name).Msg("notification: requestor has no email, approver message goes out without cc")
		}

		vars := BuildVariables(VariableInput{
			Request:        req,
			PreviousStatus: previousStatus,
			ActorName:      actor.Name,
			ActorRole:      actor.Role,
			Comments:       comments,
			NextApprovers:  recipients.To,
			BaseURL:        d.baseURL,
		})
		subject := Render(tpl.Subject, vars)
		body := Render(tpl.Body, vars)

		d.publish(ctx, req, eventType, actor, recipients, subject, body, vars)
		d.recordInApp(ctx, req, tpl, recipients, subject, body, vars, &log)
	}
}

// resolveApprovers finds the TO audience for approver-facing templates. skip
// is true when the template should not fire at all (no permission mapping,
// no processing queue for the request).
func (d *Dispatcher) resolveApprovers(ctx context.Context, req *repository.Request, tpl *repository.NotificationTemplate, log *zerolog.Logger) ([]Recipient, bool) {
	if tpl.RecipientType == repository.RecipientRequestor {
		return nil, false
	}

	permission, ok := d.resolver.PermissionFor(req.EntityType, req.Status)
	if req.Status == workflow.StatusApproved && req.EntityType == repository.EntityTravel {
		// Fully approved travel forks on destination: flights desk or no
		// further queue at all.
		flightPermission, needsProcessing, err := d.classifier.ProcessingPermission(ctx, req)
		if err != nil {
			log.Error().Err(err).Msg("notification: itinerary classification failed, skipping")
			return nil, true
		}
		if !needsProcessing {
			log.Info().Msg("notification: no processing queue for this trip, skipping handoff")
			return nil, true
		}
		permission, ok = flightPermission, true
	}
	if !ok {
		log.Warn().Msg("notification: no permission mapping for stage, skipping")
		return nil, true
	}

	users, err := d.resolver.ResolveByPermission(ctx, permission, req.Status, req.Department)
	if err != nil {
		log.Error().Err(err).Str("permission", permission).Msg("notification: approver resolution failed, skipping")
		return nil, true
	}
	if len(users) == 0 {
		log.Warn().Str("permission", permission).Msg("notification: no active holders of permission, skipping")
		return nil, true
	}

	approvers := make([]Recipient, 0, len(users))
	for _, u := range users {
		approvers = append(approvers, ApproverRecipient(u))
	}
	return approvers, false
}

func (d *Dispatcher) publish(ctx context.Context, req *repository.Request, eventType string, actor workflow.Actor, recipients RecipientSet, subject, body string, vars map[string]string) {
	to, cc := recipients.Emails()
	d.publisher.PublishRequestEvent(ctx, &client.RequestEvent{
		EventType:  eventType,
		EntityType: req.EntityType,
		EntityID:   req.ID,
		ActorID:    actor.ID,
		To:         to,
		CC:         cc,
		Subject:    subject,
		Body:       body,
		Category:   "approval",
		ActionURL:  vars["approvalUrl"],
		Payload: map[string]interface{}{
			"status":          req.Status,
			"previous_status": vars["previousStatus"],
			"department":      req.Department,
		},
	})
}

// recordInApp mirrors the message into per-user notification rows. Each row
// is written independently: one failed insert must not lose the rest.
func (d *Dispatcher) recordInApp(ctx context.Context, req *repository.Request, tpl *repository.NotificationTemplate, recipients RecipientSet, subject, body string, vars map[string]string, log *zerolog.Logger) {
	write := func(r Recipient, actionRequired bool) {
		rec := &repository.NotificationRecord{
			UserID:            r.UserID,
			Title:             subject,
			Message:           body,
			Type:              tpl.Name,
			Category:          "approval",
			Priority:          "normal",
			RelatedEntityType: &req.EntityType,
			RelatedEntityID:   &req.ID,
			ActionRequired:    actionRequired,
		}
		if actionRequired {
			if url := vars["approvalUrl"]; url != "" {
				rec.ActionURL = &url
			}
		} else if url := vars["viewUrl"]; url != "" {
			rec.ActionURL = &url
		}

		if _, err := d.records.Create(ctx, rec); err != nil {
			log.Warn().Err(err).Str("user_id", r.UserID).Msg("notification: failed to write in-app record")
		}
	}

	for _, r := range recipients.To {
		write(r, tpl.RecipientType != repository.RecipientRequestor)
	}
	for _, r := range recipients.CC {
		write(r, false)
	}
}
