package firestore

import (
	"time"

	domain "github.com/campushub/api/internal/domain"
)

const (
	postsCollection     = "posts"
	commentsCollection  = "comments"
	reactionsCollection = "reactions"
	usersCollection     = "users"
	ordersCollection    = "orders"
	countersCollection  = "counters"
)

func targetCollection(kind domain.TargetKind) string {
	if kind == domain.TargetKindComment {
		return commentsCollection
	}
	return postsCollection
}

type statsDocument struct {
	Likes    int64 `firestore:"likes"`
	Dislikes int64 `firestore:"dislikes"`
}

// targetDocument reads the fields of a post or comment the core cares about. Other fields
// written by the content services are ignored.
type targetDocument struct {
	AuthorID string        `firestore:"authorId"`
	Stats    statsDocument `firestore:"stats"`
}

func (d targetDocument) toDomain(ref domain.TargetRef) domain.ReactableTarget {
	return domain.ReactableTarget{
		Ref:     ref,
		OwnerID: d.AuthorID,
		Stats:   domain.ReactionStats{Likes: d.Stats.Likes, Dislikes: d.Stats.Dislikes},
	}
}

type reactionDocument struct {
	UserID     string    `firestore:"userId"`
	TargetID   string    `firestore:"targetId"`
	TargetKind string    `firestore:"targetKind"`
	Type       string    `firestore:"type"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func reactionToDocument(r domain.Reaction) reactionDocument {
	return reactionDocument{
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
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type timelineDocument struct {
	Action     string    `firestore:"action"`
	Status     string    `firestore:"status"`
	Timestamp  time.Time `firestore:"timestamp"`
	OperatorID string    `firestore:"operatorId"`
	Note       string    `firestore:"note,omitempty"`
}

type ratingDocument struct {
	Score     int       `firestore:"score"`
	Comment   string    `firestore:"comment,omitempty"`
	RatedBy   string    `firestore:"ratedBy"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	OrderNumber   string             `firestore:"orderNumber"`
	CustomerID    string             `firestore:"customerId"`
	HelperID      string             `firestore:"helperId,omitempty"`
	Status        string             `firestore:"status"`
	Description   string             `firestore:"description,omitempty"`
	PickupCode    string             `firestore:"pickupCode,omitempty"`
	Destination   string             `firestore:"destination,omitempty"`
	Reward        int64              `firestore:"reward"`
	PaymentStatus string             `firestore:"paymentStatus,omitempty"`
	Timeline      []timelineDocument `firestore:"timeline"`
	Rating        *ratingDocument    `firestore:"rating,omitempty"`
	ExpiresAt     time.Time          `firestore:"expiresAt"`
	CreatedAt     time.Time          `firestore:"createdAt"`
	UpdatedAt     time.Time          `firestore:"updatedAt"`
	Revision      int64              `firestore:"revision"`
}

func orderToDocument(o domain.Order) orderDocument {
	doc := orderDocument{
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
	for _, entry := range o.Timeline {
		doc.Timeline = append(doc.Timeline, timelineDocument{
			Action:     entry.Action,
			Status:     string(entry.Status),
			Timestamp:  entry.Timestamp.UTC(),
			OperatorID: entry.OperatorID,
			Note:       entry.Note,
		})
	}
	if o.Rating != nil {
		doc.Rating = &ratingDocument{
			Score:     o.Rating.Score,
			Comment:   o.Rating.Comment,
			RatedBy:   o.Rating.RatedBy,
			CreatedAt: o.Rating.CreatedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:            id,
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
		ExpiresAt:     d.ExpiresAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Revision:      d.Revision,
	}
	for _, entry := range d.Timeline {
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Action:     entry.Action,
			Status:     domain.OrderStatus(entry.Status),
			Timestamp:  entry.Timestamp,
			OperatorID: entry.OperatorID,
			Note:       entry.Note,
		})
	}
	if d.Rating != nil {
		order.Rating = &domain.OrderRating{
			Score:     d.Rating.Score,
			Comment:   d.Rating.Comment,
			RatedBy:   d.Rating.RatedBy,
			CreatedAt: d.Rating.CreatedAt,
		}
	}
	return order
}
