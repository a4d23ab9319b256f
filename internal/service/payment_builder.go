package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
)

const maxVRNLength = 15

// ChargeRequest 支付请求
type ChargeRequest struct {
	Amount         int
	TravelDates    []time.Time
	VRNs           []string
	CleanAirZoneID uuid.UUID
	ReturnURL      string
	EmailAddress   string
	PaymentMethod  string
	MandateID      string
}

// PaymentBuilder 构建未持久化的支付聚合
type PaymentBuilder struct {
	remainderPolicy string
	now             func() time.Time
}

// NewPaymentBuilder 创建支付聚合构建器
func NewPaymentBuilder(remainderPolicy string) *PaymentBuilder {
	policy := strings.ToLower(strings.TrimSpace(remainderPolicy))
	if policy != constants.RemainderPolicyDistribute {
		policy = constants.RemainderPolicyTruncate
	}
	return &PaymentBuilder{
		remainderPolicy: policy,
		now:             time.Now,
	}
}

// Build 生成 NOT_PAID 状态的支付聚合，每个 (车牌, 日期) 一条明细
func (b *PaymentBuilder) Build(req ChargeRequest) (*models.Payment, error) {
	normalized, err := normalizeChargeRequest(req)
	if err != nil {
		return nil, err
	}
	charges, err := DistributeCharge(normalized.Amount, len(normalized.TravelDates), b.remainderPolicy)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	lines := make([]models.VehicleEntrantPayment, 0, len(normalized.TravelDates)*len(normalized.VRNs))
	for dayIdx, travelDate := range normalized.TravelDates {
		for _, vrn := range normalized.VRNs {
			lines = append(lines, models.VehicleEntrantPayment{
				ID:                    uuid.New(),
				PaymentID:             paymentID,
				CleanZoneID:           normalized.CleanAirZoneID,
				VRN:                   vrn,
				TravelDate:            travelDate,
				ChargePaid:            charges[dayIdx],
				InternalPaymentStatus: constants.InternalStatusNotPaid,
				UpdateActor:           constants.UpdateActorUser,
			})
		}
	}
	zoneID, err := FindZoneID(lines)
	if err != nil {
		return nil, err
	}

	now := b.now()
	payment := &models.Payment{
		ID:             paymentID,
		Reference:      generatePaymentReference(now),
		InternalStatus: constants.InternalStatusNotPaid,
		PaymentMethod:  normalized.PaymentMethod,
		CleanAirZoneID: zoneID,
		ReturnURL:      normalized.ReturnURL,
		EmailAddress:   normalized.EmailAddress,
		MandateID:      normalized.MandateID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	payment.EntrantPayments = lines
	payment.TotalPaid = payment.SumCharges()
	return payment, nil
}

func normalizeChargeRequest(req ChargeRequest) (ChargeRequest, error) {
	if req.Amount <= 0 {
		return req, validationError("amount must be positive")
	}
	if req.CleanAirZoneID == uuid.Nil {
		return req, validationError("clean_air_zone_id is required")
	}

	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = constants.PaymentMethodCard
	}
	req.MandateID = strings.TrimSpace(req.MandateID)
	switch req.PaymentMethod {
	case constants.PaymentMethodCard:
		if req.MandateID != "" {
			return req, validationError("mandate_id is only allowed for direct debit")
		}
	case constants.PaymentMethodDirectDebit:
		if req.MandateID == "" {
			return req, validationError("mandate_id is required for direct debit")
		}
	default:
		return req, fmt.Errorf("%w: %s", ErrPaymentMethodInvalid, req.PaymentMethod)
	}

	req.ReturnURL = strings.TrimSpace(req.ReturnURL)
	parsed, err := url.ParseRequestURI(req.ReturnURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return req, validationError("return_url is invalid")
	}

	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	if req.EmailAddress != "" {
		if _, err := mail.ParseAddress(req.EmailAddress); err != nil {
			return req, validationError("email_address is invalid")
		}
	}

	dates, err := normalizeTravelDates(req.TravelDates)
	if err != nil {
		return req, err
	}
	req.TravelDates = dates

	vrns, err := normalizeVRNs(req.VRNs)
	if err != nil {
		return req, err
	}
	req.VRNs = vrns
	return req, nil
}

// normalizeTravelDates 截断到自然日并去重排序
func normalizeTravelDates(raw []time.Time) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, validationError("travel_dates must not be empty")
	}
	seen := make(map[time.Time]struct{}, len(raw))
	dates := make([]time.Time, 0, len(raw))
	for _, value := range raw {
		if value.IsZero() {
			return nil, validationError("travel_dates contains an empty date")
		}
		day := time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// normalizeVRNs 车牌统一大写去空格并去重
func normalizeVRNs(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	vrns := make([]string, 0, len(raw))
	for _, value := range raw {
		vrn := strings.ToUpper(strings.Join(strings.Fields(value), ""))
		if vrn == "" {
			continue
		}
		if len(vrn) > maxVRNLength {
			return nil, validationError("vrn %q is too long", vrn)
		}
		if _, ok := seen[vrn]; ok {
			continue
		}
		seen[vrn] = struct{}{}
		vrns = append(vrns, vrn)
	}
	if len(vrns) == 0 {
		return nil, validationError("vrns must not be empty")
	}
	sort.Strings(vrns)
	return vrns, nil
}

func generatePaymentReference(now time.Time) string {
	return fmt.Sprintf("CAZ%s%s", now.UTC().Format("060102"), randNumeric(8))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
