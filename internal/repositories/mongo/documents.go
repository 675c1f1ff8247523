package mongo

import (
	"time"

	domain "github.com/campushub/api/internal/domain"
)

type statsDocument struct {
	Likes    int64 `bson:"likes"`
	Dislikes int64 `bson:"dislikes"`
}

type targetDocument struct {
	ID       string        `bson:"_id"`
	AuthorID string        `bson:"authorId"`
	Stats    statsDocument `bson:"stats"`
}

func (d targetDocument) toDomain(kind domain.TargetKind) domain.ReactableTarget {
	return domain.ReactableTarget{
		Ref:     domain.TargetRef{ID: d.ID, Kind: kind},
		OwnerID: d.AuthorID,
		Stats:   domain.ReactionStats{Likes: d.Stats.Likes, Dislikes: d.Stats.Dislikes},
	}
}

type reactionDocument struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"userId"`
	TargetID   string    `bson:"targetId"`
	TargetKind string    `bson:"targetKind"`
	Type       string    `bson:"type"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func reactionToDocument(r domain.Reaction) reactionDocument {
	return reactionDocument{
		ID:         r.Key().DocumentID(),
		UserID:     r.UserID,
		TargetID:   r.TargetID,
		TargetKind: string(r.TargetKind),
		Type:       string(r.Type),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (d reactionDocument) toDomain() domain.Reaction {
	return domain.Reaction{
		UserID:     d.UserID,
		TargetID:   d.TargetID,
		TargetKind: domain.TargetKind(d.TargetKind),
		Type:       domain.ReactionType(d.Type),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

type timelineDocument struct {
	Action     string    `bson:"action"`
	Status     string    `bson:"status"`
	Timestamp  time.Time `bson:"timestamp"`
	OperatorID string    `bson:"operatorId"`
	Note       string    `bson:"note,omitempty"`
}

type ratingDocument struct {
	Score     int       `bson:"score"`
	Comment   string    `bson:"comment,omitempty"`
	RatedBy   string    `bson:"ratedBy"`
	CreatedAt time.Time `bson:"createdAt"`
}

type orderDocument struct {
	ID            string             `bson:"_id"`
	OrderNumber   string             `bson:"orderNumber"`
	CustomerID    string             `bson:"customerId"`
	HelperID      string             `bson:"helperId,omitempty"`
	Status        string             `bson:"status"`
	Description   string             `bson:"description,omitempty"`
	PickupCode    string             `bson:"pickupCode,omitempty"`
	Destination   string             `bson:"destination,omitempty"`
	Reward        int64              `bson:"reward"`
	PaymentStatus string             `bson:"paymentStatus,omitempty"`
	Timeline      []timelineDocument `bson:"timeline"`
	Rating        *ratingDocument    `bson:"rating,omitempty"`
	ExpiresAt     time.Time          `bson:"expiresAt"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
	Revision      int64              `bson:"revision"`
}

func orderToDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		HelperID:      o.HelperID,
		Status:        string(o.Status),
		Description:   o.Description,
		PickupCode:    o.PickupCode,
		Destination:   o.Destination,
		Reward:        o.Reward,
		PaymentStatus: o.PaymentStatus,
		Timeline:      make([]timelineDocument, 0, len(o.Timeline)),
		ExpiresAt:     o.ExpiresAt.UTC(),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
		Revision:      o.Revision,
	}
	for _, e := range o.Timeline {
		doc.Timeline = append(doc.Timeline, timelineDocument{
			Action:     e.Action,
			Status:     string(e.Status),
			Timestamp:  e.Timestamp.UTC(),
			OperatorID: e.OperatorID,
			Note:       e.Note,
		})
	}
	if o.Rating != nil {
		doc.Rating = &ratingDocument{Score: o.Rating.Score, Comment: o.Rating.Comment, RatedBy: o.Rating.RatedBy, CreatedAt: o.Rating.CreatedAt.UTC()}
	}
	return doc
}

func (d orderDocument) toDomain() domain.Order {
	o := domain.Order{
		ID:            d.ID,
		OrderNumber:   d.OrderNumber,
		CustomerID:    d.CustomerID,
		HelperID:      d.HelperID,
		Status:        domain.OrderStatus(d.Status),
		Description:   d.Description,
		PickupCode:    d.PickupCode,
		Destination:   d.Destination,
		Reward:        d.Reward,
		PaymentStatus: d.PaymentStatus,
		Timeline:      make([]domain.TimelineEntry, 0, len(d.Timeline)),
		ExpiresAt:     d.ExpiresAt.UTC(),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		Revision:      d.Revision,
	}
	for _, e := range d.Timeline {
		o.Timeline = append(o.Timeline, domain.TimelineEntry{
			Action:     e.Action,
			Status:     domain.OrderStatus(e.Status),
			Timestamp:  e.Timestamp.UTC(),
			OperatorID: e.OperatorID,
			Note:       e.Note,
		})
	}
	if d.Rating != nil {
		o.Rating = &domain.OrderRating{Score: d.Rating.Score, Comment: d.Rating.Comment, RatedBy: d.Rating.RatedBy, CreatedAt: d.Rating.CreatedAt.UTC()}
	}
	return o
}

type userDocument struct {
	ID         string   `bson:"_id"`
	Reputation int64    `bson:"reputation"`
	FCMTokens  []string `bson:"fcmTokens"`
}
