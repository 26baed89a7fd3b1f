package cabinet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/inventory"
)

// ConfirmTopic is the wildcard topic physical swap cabinets publish their
// post-swap confirmation on, one concrete topic per station.
const ConfirmTopic = "stations/+/swap-confirm"

// Confirmation is the message a cabinet publishes after the driver physically
// completed the exchange.
type Confirmation struct {
	TransactionID string `json:"transaction_id"`
	BatteryID     string `json:"battery_id"`
	Mounted       bool   `json:"mounted"`
}

// Listener subscribes to cabinet confirmations and finalizes the vehicle-side
// mount. This sits outside the swap's transactional boundary: the swap is
// already durable by the time a confirmation arrives.
type Listener struct {
	client mqtt.Client
	inv    *inventory.Store
}

// NewListener creates a cabinet confirmation listener against an MQTT broker.
func NewListener(broker string, inv *inventory.Store) *Listener {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("swap-station-core").
		SetAutoReconnect(true).
		SetConnectRetry(true)
	return &Listener{client: mqtt.NewClient(opts), inv: inv}
}

// Start connects and subscribes. Returns once the subscription is active.
func (l *Listener) Start() error {
	if token := l.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	if token := l.client.Subscribe(ConfirmTopic, 1, l.handle); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe: %w", token.Error())
	}
	log.WithField("topic", ConfirmTopic).Info("listening for cabinet confirmations")
	return nil
}

// Stop disconnects from the broker.
func (l *Listener) Stop() {
	l.client.Disconnect(250)
}

// handle processes a single confirmation. Malformed messages are logged and
// dropped; a bad cabinet must never take the service down.
func (l *Listener) handle(_ mqtt.Client, msg mqtt.Message) {
	var c Confirmation
	if err := json.Unmarshal(msg.Payload(), &c); err != nil {
		log.WithError(err).WithField("topic", msg.Topic()).
			Warn("dropping malformed cabinet confirmation")
		return
	}
	if !c.Mounted {
		log.WithFields(log.Fields{
			"transaction_id": c.TransactionID,
			"battery_id":     c.BatteryID,
		}).Warn("cabinet reported unmounted battery")
		return
	}

	batteryID, err := primitive.ObjectIDFromHex(c.BatteryID)
	if err != nil {
		log.WithField("battery_id", c.BatteryID).
			Warn("dropping confirmation with invalid battery id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.inv.ConfirmMounted(ctx, batteryID, time.Now().UTC()); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"transaction_id": c.TransactionID,
			"battery_id":     c.BatteryID,
		}).Error("failed to record mount confirmation")
		return
	}
	log.WithFields(log.Fields{
		"transaction_id": c.TransactionID,
		"battery_id":     c.BatteryID,
	}).Info("cabinet confirmed battery mount")
}
