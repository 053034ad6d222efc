package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/explorers-club/progress/internal/kafka"
	"github.com/google/uuid"
)

// pairKey identifies one (profile, activity) completion
type pairKey struct {
	profileID  int64
	activityID int64
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "activity-completions", "Kafka topic")
	profiles := flag.Int64("profiles", 200, "Profile ids 1..N to complete activities for")
	activities := flag.Int64("activities", 60, "Activity ids 1..N to complete")
	rate := flag.Int("rate", 20, "Completions per second")
	duplicates := flag.Int("duplicates", 5, "Percent of messages that resend an earlier completion")
	duration := flag.Duration("duration", 0, "Duration to run (0 = until every pair is sent)")
	flag.Parse()

	if *profiles <= 0 || *activities <= 0 || *rate <= 0 {
		log.Fatal("profiles, activities and rate must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Activity completion producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Profiles:         %d\n", *profiles)
	fmt.Printf("  Activities:       %d\n", *activities)
	fmt.Printf("  Completions/sec:  %d\n", *rate)
	fmt.Printf("  Duplicates:       %d%%\n", *duplicates)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Keyed by profile so one explorer's completions stay ordered on a partition
	send := func(pair pairKey) {
		data, err := json.Marshal(kafka.CompletionMessage{
			ProfileID:  pair.profileID,
			ActivityID: pair.activityID,
			EventID:    uuid.NewString(),
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(pair.profileID, 10)),
			Value: sarama.ByteEncoder(data),
		}
	}

	// Every pair is sent once, in random order; duplicates replay a sent pair
	// to exercise the already-completed path.
	total := *profiles * *activities
	order := rand.Perm(int(total))
	sent := make([]pairKey, 0, len(order))

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var next int
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			if len(sent) > 0 && rand.Intn(100) < *duplicates {
				send(sent[rand.Intn(len(sent))])
				continue
			}
			if next >= len(order) {
				shutdown("Every completion sent")
				return
			}

			idx := int64(order[next])
			next++
			pair := pairKey{profileID: idx / *activities + 1, activityID: idx%*activities + 1}
			send(pair)
			sent = append(sent, pair)

		case <-statsTicker.C:
			fmt.Printf("[%s] Generated: %d/%d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				next,
				total,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
