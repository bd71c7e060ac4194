package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 入站邮件处理结果标签值
const (
	InboundOutcomePersisted    = "persisted"
	InboundOutcomeDuplicate    = "duplicate"
	InboundOutcomeBadAddress   = "bad_address"
	InboundOutcomeUnauthorized = "unauthorized"
	InboundOutcomeError        = "error"
)

// 消息写入渠道标签值
const (
	ChannelEmail = "email"
	ChannelForm  = "form"
	ChannelApp   = "app"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 入站邮件指标
	InboundEmailsTotal *prometheus.CounterVec

	// 通知指标
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter

	// 认证指标
	OTPCodesIssued   prometheus.Counter
	OTPVerifications *prometheus.CounterVec

	// 业务指标
	ConversationsStarted prometheus.Counter
	MessagesPersisted    *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// WebSocket 指标
	WebsocketConnections prometheus.Gauge
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homematch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "homematch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		InboundEmailsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homematch_inbound_emails_total",
				Help: "Total number of inbound email replies by processing outcome",
			},
			[]string{"outcome"},
		),

		NotificationsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "homematch_notifications_sent_total",
				Help: "Total number of notification emails sent",
			},
		),

		NotificationsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "homematch_notifications_failed_total",
				Help: "Total number of notification emails that failed to send",
			},
		),

		OTPCodesIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "homematch_otp_codes_issued_total",
				Help: "Total number of login codes issued",
			},
		),

		OTPVerifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homematch_otp_verifications_total",
				Help: "Total number of login code verifications by result",
			},
			[]string{"result"},
		),

		ConversationsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "homematch_conversations_started_total",
				Help: "Total number of conversations started",
			},
		),

		MessagesPersisted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homematch_messages_persisted_total",
				Help: "Total number of conversation messages persisted by channel",
			},
			[]string{"channel"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homematch_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "homematch_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		WebsocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "homematch_websocket_connections",
				Help: "Number of active websocket connections",
			},
		),
	}
}

// Handler 返回 Prometheus 指标的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
