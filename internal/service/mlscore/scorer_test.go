package mlscore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

func txnAt(amount float64, ts time.Time) fraudmodel.Transaction {
	return fraudmodel.Transaction{
		TransactionID: "t1",
		SenderID:      "s1",
		ReceiverID:    "r1",
		Amount:        fraudmodel.MustMoney(amount),
		Timestamp:     ts,
	}
}

func TestExtractFeatures_WeekdayMondayIsZero(t *testing.T) {
	monday := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC) // a Monday
	f := ExtractFeatures(txnAt(100, monday), fraudmodel.UserHistory{}, fraudmodel.UserHistory{})
	require.Equal(t, 0, f.DayOfWeek)
	require.Equal(t, 14, f.HourOfDay)
}

func TestExtractFeatures_SundayIsSix(t *testing.T) {
	sunday := time.Date(2026, 1, 4, 3, 0, 0, 0, time.UTC)
	f := ExtractFeatures(txnAt(100, sunday), fraudmodel.UserHistory{}, fraudmodel.UserHistory{})
	require.Equal(t, 6, f.DayOfWeek)
}

func TestExtractFeatures_CarriesSenderHistoryFields(t *testing.T) {
	sender := fraudmodel.UserHistory{
		TxnCount:       7,
		AmountVelocity: 3,
		LastDevice:     "device-a",
		LastIP:         "1.2.3.4",
	}
	receiver := fraudmodel.UserHistory{TxnCount: 2}
	txn := txnAt(100, time.Now())
	txn.DeviceID = "device-b"
	txn.IPAddress = "1.2.3.4"

	f := ExtractFeatures(txn, sender, receiver)

	require.Equal(t, int64(7), f.SenderTxnCount)
	require.Equal(t, int64(2), f.ReceiverTxnCount)
	require.Equal(t, int64(3), f.AmountVelocity)
	require.True(t, f.DeviceChanged, "device differs from sender's last-seen device")
	require.False(t, f.IPChanged, "ip matches sender's last-seen ip")
}

func TestExtractFeatures_NoHistoryNeverSignalsChange(t *testing.T) {
	f := ExtractFeatures(txnAt(100, time.Now()), fraudmodel.UserHistory{}, fraudmodel.UserHistory{})
	require.False(t, f.DeviceChanged)
	require.False(t, f.IPChanged)
}

func TestHeuristicScore_NoSignals(t *testing.T) {
	s := New(nil)
	score := s.Predict(FeatureVector{Amount: 100, HourOfDay: 12})
	require.Equal(t, 0.0, score)
}

func TestHeuristicScore_AllSignalsClampTo1(t *testing.T) {
	s := New(nil)
	score := s.Predict(FeatureVector{
		Amount:         60000,
		HourOfDay:      2,
		AmountVelocity: 10,
		DeviceChanged:  true,
	})
	require.Equal(t, 1.0, score)
}

func TestHeuristicScore_PartialSignals(t *testing.T) {
	s := New(nil)
	score := s.Predict(FeatureVector{Amount: 60000, HourOfDay: 12})
	require.InDelta(t, 0.3, score, 1e-9)
}

type fakeClassifier struct {
	prob float64
	err  error
}

func (f fakeClassifier) Predict(FeatureVector) (float64, error) { return f.prob, f.err }

func TestPredict_UsesClassifierWhenLoaded(t *testing.T) {
	s := New(fakeClassifier{prob: 0.87})
	require.Equal(t, 0.87, s.Predict(FeatureVector{}))
}

func TestPredict_FallsBackToHeuristicOnInferenceFault(t *testing.T) {
	s := New(fakeClassifier{err: errors.New("model unavailable")})
	score := s.Predict(FeatureVector{Amount: 60000, HourOfDay: 12})
	require.InDelta(t, 0.3, score, 1e-9)
}
