package influxdb

import (
	"testing"

	"github.com/nerrad567/fancontrol-core/internal/infrastructure/config"
)

func TestBatchOptions(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.InfluxDBConfig
		wantBatch  uint
		wantMillis uint
	}{
		{name: "defaults", cfg: config.InfluxDBConfig{}, wantBatch: 100, wantMillis: 10000},
		{name: "configured", cfg: config.InfluxDBConfig{BatchSize: 20, FlushInterval: 2}, wantBatch: 20, wantMillis: 2000},
		{name: "negative falls back", cfg: config.InfluxDBConfig{BatchSize: -5, FlushInterval: -1}, wantBatch: 100, wantMillis: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batchSize(tt.cfg); got != tt.wantBatch {
				t.Errorf("batchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := flushIntervalMillis(tt.cfg); got != tt.wantMillis {
				t.Errorf("flushIntervalMillis() = %d, want %d", got, tt.wantMillis)
			}
		})
	}
}

func TestWriteErrorsCounted(t *testing.T) {
	c := &Client{}
	var seen int
	c.SetOnError(func(error) { seen++ })

	errs := make(chan error, 2)
	errs <- errTest("batch rejected")
	errs <- errTest("timeout")
	close(errs)
	c.handleWriteErrors(errs)

	if c.WriteErrors() != 2 || seen != 2 {
		t.Errorf("WriteErrors() = %d, callbacks = %d, want 2 and 2", c.WriteErrors(), seen)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
