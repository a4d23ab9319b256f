package service

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/credentials"
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
)

const (
	receiptDateLayout      = "02 January 2006"
	defaultReceiptZoneName = "Clean Air Zone"
)

// ReceiptNotification 收据通知消息
type ReceiptNotification struct {
	Reference       string              `json:"reference"`
	EmailAddress    string              `json:"email_address"`
	TemplateID      string              `json:"template_id"`
	Personalisation ReceiptPersonalised `json:"personalisation"`
}

// ReceiptPersonalised 收据模板变量
type ReceiptPersonalised struct {
	Amount     string   `json:"amount"`
	Caz        string   `json:"caz"`
	Date       []string `json:"date"`
	Reference  string   `json:"reference"`
	VRN        string   `json:"vrn"`
	ExternalID string   `json:"external_id"`
}

// ReceiptBuilder 生成收据发件箱消息
type ReceiptBuilder struct {
	templateID string
	topic      string
	zoneNames  map[string]string
}

// NewReceiptBuilder 创建收据构建器，zoneNames 的键可带或不带连字符
func NewReceiptBuilder(templateID, topic string, zoneNames map[string]string) *ReceiptBuilder {
	names := make(map[string]string, len(zoneNames))
	for key, name := range zoneNames {
		normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", ""))
		if normalized == "" || strings.TrimSpace(name) == "" {
			continue
		}
		names[normalized] = strings.TrimSpace(name)
	}
	return &ReceiptBuilder{
		templateID: strings.TrimSpace(templateID),
		topic:      strings.TrimSpace(topic),
		zoneNames:  names,
	}
}

// Build 生成收据通知
func (b *ReceiptBuilder) Build(payment *models.Payment) ReceiptNotification {
	return ReceiptNotification{
		Reference:    payment.Reference,
		EmailAddress: payment.EmailAddress,
		TemplateID:   b.templateID,
		Personalisation: ReceiptPersonalised{
			Amount:     models.NewMoneyFromPennies(payment.TotalPaid).Pounds(),
			Caz:        b.zoneName(payment.CleanAirZoneID),
			Date:       receiptDates(payment.EntrantPayments),
			Reference:  payment.Reference,
			VRN:        strings.Join(receiptVRNs(payment.EntrantPayments), ", "),
			ExternalID: payment.ExternalID,
		},
	}
}

// OutboxMessage 生成与状态变更同事务写入的发件箱消息
func (b *ReceiptBuilder) OutboxMessage(payment *models.Payment) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(b.Build(payment))
	if err != nil {
		return nil, err
	}
	return &models.OutboxMessage{
		ID:          uuid.New(),
		AggregateID: payment.ID,
		Topic:       b.topic,
		Key:         payment.Reference,
		Payload:     string(payload),
		Status:      constants.OutboxStatusPending,
		CreatedAt:   time.Now(),
	}, nil
}

func (b *ReceiptBuilder) zoneName(zoneID uuid.UUID) string {
	if name, ok := b.zoneNames[credentials.NormalizeZoneKey(zoneID)]; ok {
		return name
	}
	return defaultReceiptZoneName
}

func receiptDates(entrants []models.VehicleEntrantPayment) []string {
	seen := make(map[time.Time]struct{}, len(entrants))
	days := make([]time.Time, 0, len(entrants))
	for _, entrant := range entrants {
		day := entrant.TravelDate.UTC()
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	dates := make([]string, 0, len(days))
	for _, day := range days {
		dates = append(dates, day.Format(receiptDateLayout))
	}
	return dates
}

func receiptVRNs(entrants []models.VehicleEntrantPayment) []string {
	seen := make(map[string]struct{}, len(entrants))
	vrns := make([]string, 0, 1)
	for _, entrant := range entrants {
		if _, ok := seen[entrant.VRN]; ok {
			continue
		}
		seen[entrant.VRN] = struct{}{}
		vrns = append(vrns, entrant.VRN)
	}
	sort.Strings(vrns)
	return vrns
}
