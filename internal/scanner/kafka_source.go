package scanner

import (
	"context"

	"logvault/pkg/types"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/xdg-go/scram"
)

// KafkaSource is a supplemental C5 ingestion path: each message on the
// configured topic is treated as one log line, parsed and submitted the
// same way a tailed file line is.
type KafkaSource struct {
	cfg    types.KafkaSourceConfig
	submit Submit
	logger *logrus.Logger
	group  sarama.ConsumerGroup
}

// NewKafkaSource builds a consumer group client, configuring SASL/SCRAM
// when the source requires it.
func NewKafkaSource(cfg types.KafkaSourceConfig, submit Submit, logger *logrus.Logger) (*KafkaSource, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	if cfg.SASLEnabled {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.SASLUser
		saramaCfg.Net.SASL.Password = cfg.SASLPassword
		saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &scramClient{HashGeneratorFcn: scram.SHA256}
		}
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, err
	}
	return &KafkaSource{cfg: cfg, submit: submit, logger: logger, group: group}, nil
}

// Run consumes cfg.Topic until ctx is cancelled, reconnecting on
// rebalance as sarama's consumer group protocol requires.
func (k *KafkaSource) Run(ctx context.Context) error {
	handler := &kafkaHandler{source: k}
	go func() {
		for err := range k.group.Errors() {
			k.logger.WithError(err).Warn("kafka consumer group error")
		}
	}()

	for {
		if err := k.group.Consume(ctx, []string{k.cfg.Topic}, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close releases the consumer group's connections.
func (k *KafkaSource) Close() error {
	return k.group.Close()
}

type kafkaHandler struct {
	source *KafkaSource
}

func (h *kafkaHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *kafkaHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *kafkaHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	sourceName := h.source.cfg.SourceNameField
	if sourceName == "" {
		sourceName = h.source.cfg.Topic
	}
	for msg := range claim.Messages() {
		rec := parseLine(sourceName, string(msg.Value))
		if err := h.source.submit(sess.Context(), rec); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// scramClient adapts xdg-go/scram to sarama's SCRAMClient interface.
type scramClient struct {
	HashGeneratorFcn scram.HashGeneratorFcn
	conv             *scram.ClientConversation
}

func (s *scramClient) Begin(userName, password, authzID string) error {
	client, err := s.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	s.conv = client.NewConversation()
	return nil
}

func (s *scramClient) Step(challenge string) (string, error) {
	return s.conv.Step(challenge)
}

func (s *scramClient) Done() bool {
	return s.conv.Done()
}
