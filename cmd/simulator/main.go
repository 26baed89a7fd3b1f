package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/auth"
	"github.com/evswap/swap-station/internal/cabinet"
	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/models"
)

// The simulator plays every party around the core: it seeds a station with
// batteries, books as a driver, confirms as staff, swaps by code at the
// terminal and finally reports the physical mount the way a cabinet would.

type booking struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ConfirmationCode string `json:"confirmation_code"`
}

type swapTransaction struct {
	ID           string  `json:"id"`
	Outcome      string  `json:"outcome"`
	NewBatteryID *string `json:"new_battery_id"`
	StationID    string  `json:"station_id"`
}

func request(method, url, token string, body interface{}) ([]byte, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

// seed writes one active station and a handful of IN_STATION batteries
// straight into Mongo, standing in for the catalog sync.
func seed(ctx context.Context, database string) (primitive.ObjectID, error) {
	client, err := db.ConnectMongo()
	if err != nil {
		return primitive.NilObjectID, err
	}
	defer client.Disconnect(ctx)

	stations := &db.MongoCollection{Collection: client.Database(database).Collection("stations")}
	batteries := &db.MongoCollection{Collection: client.Database(database).Collection("batteries")}

	station := models.Station{
		ID:        primitive.NewObjectID(),
		Name:      fmt.Sprintf("Sim Station %d", rand.Intn(1000)),
		Address:   "1 Simulator Way",
		Slots:     []string{"S1", "S2", "S3", "S4"},
		Capacity:  4,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	if err := stations.InsertStation(ctx, station); err != nil {
		return primitive.NilObjectID, err
	}

	for i := 0; i < 4; i++ {
		b := models.Battery{
			ID:            primitive.NewObjectID(),
			Code:          fmt.Sprintf("BAT-%d-%04d", time.Now().Unix(), rand.Intn(10000)),
			Model:         "SimPack 48V",
			StateOfHealth: 75 + rand.Float64()*25,
			State:         models.BatteryInStation,
			StationID:     &station.ID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := batteries.InsertBattery(ctx, b); err != nil {
			return primitive.NilObjectID, err
		}
	}
	log.WithField("station_id", station.ID.Hex()).Info("seeded station with 4 batteries")
	return station.ID, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "swapstation"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stationID, err := seed(ctx, dbName)
	if err != nil {
		log.WithError(err).Fatal("failed to seed station")
	}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}
	driverToken, err := authService.GenerateToken("sim-driver-1", "sim-driver", models.RoleDriver)
	if err != nil {
		log.WithError(err).Fatal("failed to mint driver token")
	}
	staffToken, err := authService.GenerateToken("sim-staff-1", "sim-staff", models.RoleStaff)
	if err != nil {
		log.WithError(err).Fatal("failed to mint staff token")
	}

	// Driver books a visit.
	body, status, err := request(http.MethodPost, apiURL+"/api/booking", driverToken, map[string]string{
		"vehicle_id": "sim-vehicle-1",
		"station_id": stationID.Hex(),
	})
	if err != nil || status != http.StatusCreated {
		log.WithError(err).WithField("status", status).Fatalf("booking failed: %s", body)
	}
	var b booking
	if err := json.Unmarshal(body, &b); err != nil {
		log.WithError(err).Fatal("failed to decode booking")
	}
	log.WithFields(log.Fields{"booking_id": b.ID, "code": b.ConfirmationCode}).Info("booking created")

	// Staff activates the code.
	_, status, err = request(http.MethodPatch, apiURL+"/api/booking/"+b.ID+"/confirm", staffToken, nil)
	if err != nil || status != http.StatusOK {
		log.WithError(err).WithField("status", status).Fatal("confirm failed")
	}
	log.Info("booking confirmed by staff")

	// Operator preview at the terminal.
	body, status, _ = request(http.MethodGet, apiURL+"/api/swap-transaction/new-battery?code="+b.ConfirmationCode, driverToken, nil)
	log.WithField("status", status).Infof("new battery preview: %s", body)

	// Driver swaps by code; the retry demonstrates the idempotent replay.
	body, status, err = request(http.MethodPost, apiURL+"/api/swap-transaction/swap-by-code?code="+b.ConfirmationCode, driverToken, nil)
	if err != nil || status != http.StatusOK {
		log.WithError(err).WithField("status", status).Fatalf("swap failed: %s", body)
	}
	var tx swapTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		log.WithError(err).Fatal("failed to decode swap transaction")
	}
	log.WithFields(log.Fields{"transaction_id": tx.ID, "outcome": tx.Outcome}).Info("swap executed")

	body, _, _ = request(http.MethodPost, apiURL+"/api/swap-transaction/swap-by-code?code="+b.ConfirmationCode, driverToken, nil)
	var replay swapTransaction
	if err := json.Unmarshal(body, &replay); err == nil && replay.ID == tx.ID {
		log.Info("replay returned the same transaction, as it should")
	} else {
		log.Warnf("replay returned a different result: %s", body)
	}

	// Cabinet reports the physical mount over MQTT.
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" || tx.NewBatteryID == nil {
		log.Info("no MQTT broker configured, skipping cabinet confirmation")
		return
	}
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("sim-cabinet")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Fatal("mqtt connect failed")
	}
	defer client.Disconnect(250)

	payload, _ := json.Marshal(cabinet.Confirmation{
		TransactionID: tx.ID,
		BatteryID:     *tx.NewBatteryID,
		Mounted:       true,
	})
	topic := fmt.Sprintf("stations/%s/swap-confirm", tx.StationID)
	if token := client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Fatal("mqtt publish failed")
	}
	log.WithField("topic", topic).Info("cabinet confirmation published")
}
