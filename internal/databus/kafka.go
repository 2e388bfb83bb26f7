package databus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gopkg.in/Shopify/sarama.v1"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// Producer is the part of sarama.SyncProducer the bus uses.
type Producer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// DataBus publishes wallet events to a Kafka topic, keyed by account so one
// wallet's events stay ordered within a partition.
type DataBus struct {
	producer Producer
	topic    string
	ids      *snowflake.Node
}

type message struct {
	ID string `json:"id"`
	wallet.Event
}

func New(p Producer, topic string, node int64) (*DataBus, error) {
	ids, err := snowflake.NewNode(node)
	if err != nil {
		return nil, errors.Wrap(err, "snowflake node")
	}
	return &DataBus{producer: p, topic: topic, ids: ids}, nil
}

// Dial connects a sync producer to the comma separated broker list in hosts.
func Dial(hosts, topic string, node int64) (*DataBus, error) {
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	p, err := sarama.NewSyncProducer(strings.Split(hosts, ","), conf)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	bus, err := New(p, topic, node)
	if err != nil {
		p.Close()
		return nil, err
	}
	log.Infof("Kafka producer initialized, topic %v...", topic)
	return bus, nil
}

func (db *DataBus) PublishRaw(key string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	msg := &sarama.ProducerMessage{
		Topic: db.topic,
		Value: sarama.ByteEncoder(raw),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := db.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, "produce message")
	}
	log.Debugf("databus - produced to %v partition %v offset %v", db.topic, partition, offset)
	return nil
}

func (db *DataBus) Publish(_ context.Context, e wallet.Event) error {
	raw, err := json.Marshal(message{ID: db.ids.Generate().String(), Event: e})
	if err != nil {
		return errors.Wrap(err, "encode wallet event")
	}
	return db.PublishRaw(e.Account, raw)
}

func (db *DataBus) Close() error {
	return db.producer.Close()
}
