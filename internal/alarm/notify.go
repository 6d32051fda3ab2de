package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/syslog"
	"net/http"
	"net/smtp"
	"time"

	"logvault/pkg/types"

	apperrors "logvault/pkg/errors"
)

// SMTPSender is the minimal surface HTTPNotifier needs from net/smtp,
// broken out so tests can stub delivery without a real mail server.
type SMTPSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// HTTPNotifier dispatches to all four NotificationChannel kinds. It
// carries no library for SMTP, syslog, or webhook delivery because
// none of the example repos' stacks include an alerting/mail client;
// these protocols are thin enough that the standard library net/smtp,
// log/syslog, and net/http are what the ecosystem itself reaches for.
type HTTPNotifier struct {
	Client     *http.Client
	SMTPAddr   string // host:port of the outbound relay
	SMTPFrom   string
	SendMail   SMTPSender
	MaxRetries int
	RetryDelay time.Duration
}

func NewHTTPNotifier(smtpAddr, smtpFrom string) *HTTPNotifier {
	return &HTTPNotifier{
		Client:     &http.Client{Timeout: 10 * time.Second},
		SMTPAddr:   smtpAddr,
		SMTPFrom:   smtpFrom,
		SendMail:   smtp.SendMail,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, ch types.NotificationChannel, alarm types.Alarm, event types.AlarmEvent) error {
	var err error
	for attempt := 0; attempt <= n.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.Cancelled("alarm", "Notify")
			case <-time.After(n.RetryDelay * time.Duration(attempt)):
			}
		}
		switch ch.Kind {
		case types.ChannelEmail:
			err = n.notifyEmail(ch, alarm, event)
		case types.ChannelWebhook:
			err = n.notifyWebhook(ctx, ch, alarm, event)
		case types.ChannelSyslog:
			err = n.notifySyslog(ch, alarm, event)
		case types.ChannelPagerDuty:
			err = n.notifyPagerDuty(ctx, ch, alarm, event)
		default:
			return apperrors.New(apperrors.CodeNotificationFailed, "alarm", "Notify", "unknown channel kind: "+string(ch.Kind))
		}
		if err == nil {
			return nil
		}
	}
	return apperrors.Wrapf(err, apperrors.CodeNotificationFailed, "alarm", "Notify", "channel "+string(ch.Kind)+" exhausted retries")
}

func (n *HTTPNotifier) notifyEmail(ch types.NotificationChannel, alarm types.Alarm, event types.AlarmEvent) error {
	body := fmt.Sprintf("Subject: [logvault] alarm %s triggered\r\n\r\n%s matched %d records (threshold %d)\n",
		alarm.Name, alarm.Query, event.MatchCount, alarm.Threshold)
	return n.SendMail(n.SMTPAddr, nil, n.SMTPFrom, []string{ch.Address}, []byte(body))
}

func (n *HTTPNotifier) notifyWebhook(ctx context.Context, ch types.NotificationChannel, alarm types.Alarm, event types.AlarmEvent) error {
	payload, err := json.Marshal(map[string]any{
		"alarm": alarm.Name, "alarmId": alarm.ID, "query": alarm.Query,
		"matchCount": event.MatchCount, "threshold": alarm.Threshold, "status": event.Status,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *HTTPNotifier) notifySyslog(ch types.NotificationChannel, alarm types.Alarm, event types.AlarmEvent) error {
	protocol := ch.Protocol
	if protocol == "" {
		protocol = "udp"
	}
	addr := fmt.Sprintf("%s:%d", ch.Host, ch.Port)
	writer, err := syslog.Dial(protocol, addr, syslog.LOG_ALERT, "logvault")
	if err != nil {
		return err
	}
	defer writer.Close()
	return writer.Alert(fmt.Sprintf("alarm %s matched %d records", alarm.Name, event.MatchCount))
}

func (n *HTTPNotifier) notifyPagerDuty(ctx context.Context, ch types.NotificationChannel, alarm types.Alarm, event types.AlarmEvent) error {
	payload, err := json.Marshal(map[string]any{
		"routing_key":  ch.IntegrationKey,
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("%s matched %d records", alarm.Name, event.MatchCount),
			"source":   "logvault",
			"severity": firstNonEmpty(ch.Severity, "error"),
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://events.pagerduty.com/v2/enqueue", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
