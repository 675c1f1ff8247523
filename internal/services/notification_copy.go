package services

import (
	"fmt"

	"golang.org/x/text/language"

	domain "github.com/campushub/api/internal/domain"
)

type notificationCopy struct {
	statusTitle   string
	statusContent map[domain.OrderStatus]string
	ratedTitle    string
	ratedContent  string
	likedTitle    string
	likedContent  string
}

var supportedLocales = []language.Tag{language.English, language.SimplifiedChinese}

var localeMatcher = language.NewMatcher(supportedLocales)

var notificationCatalog = []notificationCopy{
	{
		statusTitle: "Order %s updated",
		statusContent: map[domain.OrderStatus]string{
			domain.OrderStatusAccepted:  "A helper accepted your order.",
			domain.OrderStatusPicked:    "Your parcel has been picked up.",
			domain.OrderStatusDelivered: "Your parcel has been delivered. Please confirm receipt.",
			domain.OrderStatusCompleted: "The customer confirmed receipt.",
			domain.OrderStatusCancelled: "The order was cancelled.",
		},
		ratedTitle:   "Order %s rated",
		ratedContent: "The customer rated your delivery %d/5.",
		likedTitle:   "New like",
		likedContent: "Someone liked your %s.",
	},
	{
		statusTitle: "订单 %s 状态更新",
		statusContent: map[domain.OrderStatus]string{
			domain.OrderStatusAccepted:  "已有同学接单。",
			domain.OrderStatusPicked:    "快递已取件。",
			domain.OrderStatusDelivered: "快递已送达，请确认收货。",
			domain.OrderStatusCompleted: "对方已确认收货。",
			domain.OrderStatusCancelled: "订单已取消。",
		},
		ratedTitle:   "订单 %s 已评价",
		ratedContent: "对方给出了 %d/5 的评分。",
		likedTitle:   "收到新的赞",
		likedContent: "有人赞了你的%s。",
	},
}

// copyFor picks the closest supported catalog for tag.
func copyFor(tag language.Tag) notificationCopy {
	_, idx, _ := localeMatcher.Match(tag)
	if idx < 0 || idx >= len(notificationCatalog) {
		idx = 0
	}
	return notificationCatalog[idx]
}

func (c notificationCopy) orderStatus(order Order) (string, string) {
	content, ok := c.statusContent[order.Status]
	if !ok {
		content = string(order.Status)
	}
	return fmt.Sprintf(c.statusTitle, order.OrderNumber), content
}

func (c notificationCopy) orderRated(order Order, score int) (string, string) {
	return fmt.Sprintf(c.ratedTitle, order.OrderNumber), fmt.Sprintf(c.ratedContent, score)
}

func (c notificationCopy) liked(kind domain.TargetKind) (string, string) {
	return c.likedTitle, fmt.Sprintf(c.likedContent, kind)
}
