package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sweepFinalizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_finalizations_total",
			Help: "Contests transitioned to completed by the expiration sweeper",
		},
		[]string{"contest"},
	)
	matchmakingPairings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchmaking_pairings_total",
			Help: "Competitions created by pairing queued groups",
		},
	)
)

// Sweeper drives the engine forward without user interaction: it finalizes
// expired duels and competitions and pairs waiting groups on a schedule.
// Every step uses the same conditional updates as the request path, so
// running it concurrently with reads or with itself is safe.
type Sweeper struct {
	duels        *DuelService
	competitions *CompetitionService
	matchmaking  *MatchmakingService
}

func NewSweeper(duels *DuelService, competitions *CompetitionService, matchmaking *MatchmakingService) *Sweeper {
	prometheus.MustRegister(sweepFinalizations, matchmakingPairings)
	return &Sweeper{duels: duels, competitions: competitions, matchmaking: matchmaking}
}

// Start schedules the recurring jobs and returns the running scheduler so
// main can shut it down gracefully.
func (s *Sweeper) Start() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			s.Sweep(ctx)
		}),
	); err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			created, err := s.matchmaking.TryPair(ctx)
			if err != nil {
				log.Printf("[Sweeper] pairing tick: %v", err)
			}
			matchmakingPairings.Add(float64(len(created)))
		}),
	); err != nil {
		return nil, err
	}

	sched.Start()
	log.Println("Expiration sweeper and matchmaking tick started")
	return sched, nil
}

// Sweep finalizes every active contest whose deadline has passed. Contests
// already finalized by a concurrent caller count as no-ops.
func (s *Sweeper) Sweep(ctx context.Context) {
	duelIDs, err := s.duels.ExpiredActiveDuelIDs(ctx)
	if err != nil {
		log.Printf("[Sweeper] listing expired duels: %v", err)
	}
	for _, id := range duelIDs {
		_, finalized, err := s.duels.FinalizeIfExpired(ctx, id)
		if err != nil {
			log.Printf("[Sweeper] finalizing duel %s: %v", id, err)
			continue
		}
		if finalized {
			sweepFinalizations.WithLabelValues("duel").Inc()
		}
	}

	compIDs, err := s.competitions.ExpiredActiveCompetitionIDs(ctx)
	if err != nil {
		log.Printf("[Sweeper] listing expired competitions: %v", err)
	}
	for _, id := range compIDs {
		_, finalized, err := s.competitions.FinalizeIfExpired(ctx, id)
		if err != nil {
			log.Printf("[Sweeper] finalizing competition %s: %v", id, err)
			continue
		}
		if finalized {
			sweepFinalizations.WithLabelValues("competition").Inc()
		}
	}
}
