package numerator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_Format(t *testing.T) {
	at := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	require.Equal(t, "CHN-202501-0001", TransferNumbers.Format(at, 1))
	require.Equal(t, "PINV-202501-0042", PurchaseNumbers.Format(at, 42))
	require.Equal(t, "REQ-202501-12345", StockRequestNumbers.Format(at, 12345))
	require.Equal(t, "SUP-0001", SupplierNumbers.Format(at, 1))
}

func TestConfig_PeriodKey(t *testing.T) {
	at := time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC)

	require.Equal(t, "202512", TransferNumbers.PeriodKey(at))
	require.Equal(t, GlobalPeriodKey, SupplierNumbers.PeriodKey(at))
}

func TestParseSequence(t *testing.T) {
	n, err := ParseSequence("CHN-202501-0007")
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	n, err = ParseSequence("SUP-0120")
	require.NoError(t, err)
	require.Equal(t, int64(120), n)

	_, err = ParseSequence("CHN-")
	require.Error(t, err)
	_, err = ParseSequence("nodash")
	require.Error(t, err)
}

type mapSequencer map[string]int64

func (m mapSequencer) NextSequence(_ context.Context, seqType, periodKey string) (int64, error) {
	m[seqType+":"+periodKey]++
	return m[seqType+":"+periodKey], nil
}

func (m mapSequencer) SetSequence(_ context.Context, seqType, periodKey string, value int64) error {
	m[seqType+":"+periodKey] = value
	return nil
}

func TestService_GetNextNumber(t *testing.T) {
	ctx := context.Background()
	svc := New(mapSequencer{})
	jan := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)

	num, err := svc.GetNextNumber(ctx, TransferNumbers, jan)
	require.NoError(t, err)
	require.Equal(t, "CHN-202501-0001", num)

	num, err = svc.GetNextNumber(ctx, TransferNumbers, jan)
	require.NoError(t, err)
	require.Equal(t, "CHN-202501-0002", num)

	num, err = svc.GetNextNumber(ctx, TransferNumbers, feb)
	require.NoError(t, err)
	require.Equal(t, "CHN-202502-0001", num, "monthly sequences restart")

	require.NoError(t, svc.SetNextNumber(ctx, SupplierNumbers, jan, 99))
	num, err = svc.GetNextNumber(ctx, SupplierNumbers, feb)
	require.NoError(t, err)
	require.Equal(t, "SUP-0100", num)
}
