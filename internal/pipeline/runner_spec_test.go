package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"repoinvest/internal/assembly"
	"repoinvest/internal/investigation"
	"repoinvest/internal/store"
)

var _ = ginkgo.Describe("Runner", func() {
	var (
		ctx      context.Context
		st       *store.MemStore
		producer *stubProducer
		writer   *memWriter
		runner   *Runner
		plan     Plan
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		st = store.NewMemStore()
		producer = &stubProducer{}
		writer = &memWriter{}
		runner = &Runner{
			Engine:    investigation.NewEngine(st, quietLogger()),
			Assembler: assembly.NewAssembler("", quietLogger()),
			Producer:  producer,
			Writer:    writer,
			Logger:    quietLogger(),
		}
		plan = testPlan()
	})

	ginkgo.Describe("first investigation", func() {
		ginkgo.It("produces every step, writes the report and records the run", func() {
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(res.Skipped).To(gomega.BeFalse())
			gomega.Expect(res.Decision.Reason).To(gomega.Equal("No previous investigation found"))
			gomega.Expect(producer.produced()).To(gomega.Equal([]string{
				"svc/overview", "svc/dependencies", "svc/monitoring", "svc/terraform",
			}))

			gomega.Expect(res.Report.Names()).To(gomega.Equal([]string{"overview", "dependencies", "monitoring", "terraform"}))
			gomega.Expect(res.Report.FreshCount).To(gomega.Equal(4))
			gomega.Expect(res.Report.Additional).To(gomega.Equal([]string{"terraform"}))
			gomega.Expect(res.Location).To(gomega.Equal("mem://svc"))
			gomega.Expect(writer.docs["svc"].Text).To(gomega.HavePrefix("# overview\n\nWhat it is\n\nsvc/overview"))
			gomega.Expect(writer.docs["svc"].Warnings).To(gomega.BeEmpty())
			gomega.Expect(res.SaveFailures).To(gomega.BeEmpty())
			gomega.Expect(res.Stats.TotalStepsTracked).To(gomega.Equal(4))
			gomega.Expect(res.Stats.HasHardGate).To(gomega.BeTrue())

			doc, err := st.GetLatestInvestigationMetadata(ctx, "svc")
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(doc[store.FieldLatestCommit]).To(gomega.Equal(shaA))
		})

		ginkgo.It("hands context from earlier steps to dependent steps", func() {
			_, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())

			req, ok := producer.request("monitoring")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(req.Context).To(gomega.Equal(map[string]string{
				"overview":     "svc/overview",
				"dependencies": "svc/dependencies",
			}))
			gomega.Expect(req.ContextKeys).To(gomega.HaveLen(2))
			gomega.Expect(req.Version).To(gomega.Equal("2"))

			req, _ = producer.request("overview")
			gomega.Expect(req.Prompt).To(gomega.ContainSubstring("Describe it."))
			gomega.Expect(req.Context).To(gomega.BeNil())
		})

		ginkgo.It("caches the dependency listing per commit", func() {
			producer.deps = map[string]any{"go": []any{"cobra"}}
			_, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())

			req, _ := producer.request("overview")
			gomega.Expect(req.Dependencies).To(gomega.HaveKey("go"))
			gomega.Expect(st.Calls(store.OpSaveBlob)).To(gomega.Equal(1))

			producer.reset()
			runner.Force = true
			_, err = runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(st.Calls(store.OpSaveBlob)).To(gomega.Equal(1), "listing is read back, not saved again")
		})
	})

	ginkgo.Describe("repeat investigations", func() {
		ginkgo.BeforeEach(func() {
			_, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			producer.reset()
		})

		ginkgo.It("skips an unchanged repository", func() {
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(res.Skipped).To(gomega.BeTrue())
			gomega.Expect(res.Decision.Rule).To(gomega.Equal(investigation.RuleUnchanged))
			gomega.Expect(res.Report).To(gomega.BeNil())
			gomega.Expect(producer.produced()).To(gomega.BeEmpty())
		})

		ginkgo.It("assembles from cache when forced at the same commit", func() {
			runner.Force = true
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(producer.produced()).To(gomega.BeEmpty())
			gomega.Expect(res.Report.CachedCount).To(gomega.Equal(4))
			gomega.Expect(res.Stats.CachedSteps).To(gomega.Equal(4))
		})

		ginkgo.It("reruns every step on a new commit", func() {
			res, err := runner.Run(ctx, target("svc", shaB), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(res.Decision.Rule).To(gomega.Equal(investigation.RuleCommit))
			gomega.Expect(producer.produced()).To(gomega.HaveLen(4))
		})

		ginkgo.It("reruns only the step whose prompt version changed", func() {
			plan.Versions = investigation.StepVersions{
				{Name: "overview", Version: "1"},
				{Name: "dependencies", Version: "1"},
				{Name: "monitoring", Version: "3"},
				{Name: "terraform", Version: "1"},
			}
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(res.Decision.Reason).To(gomega.Equal("Prompt 'monitoring' version changed (v2 → v3)"))
			gomega.Expect(producer.produced()).To(gomega.Equal([]string{"svc/monitoring"}))
			gomega.Expect(res.Report.CachedCount).To(gomega.Equal(3))
			gomega.Expect(res.Report.FreshCount).To(gomega.Equal(1))
		})
	})

	ginkgo.Describe("failures", func() {
		ginkgo.It("fails without writing or recording when the hard gate is missing", func() {
			producer.fail = map[string]bool{"monitoring": true}
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.MatchError(assembly.ErrHardGateMissing))
			gomega.Expect(res.Err).To(gomega.MatchError(assembly.ErrHardGateMissing))
			gomega.Expect(res.StepErrors).To(gomega.HaveKey("monitoring"))
			gomega.Expect(res.Report.MissingMandatory).To(gomega.Equal([]string{"monitoring"}))
			gomega.Expect(writer.docs).To(gomega.BeEmpty())

			d := runner.Engine.Decide(ctx, "svc", target("svc", shaA).State, plan.Versions)
			gomega.Expect(d.Rule).To(gomega.Equal(investigation.RuleMissing))
		})

		ginkgo.It("tolerates a failing optional step", func() {
			producer.fail = map[string]bool{"terraform": true}
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(res.StepErrors).To(gomega.HaveKey("terraform"))
			gomega.Expect(res.Report.Names()).NotTo(gomega.ContainElement("terraform"))
			gomega.Expect(writer.docs).To(gomega.HaveKey("svc"))
		})

		ginkgo.It("logs content it could not attach to an untracked step", func() {
			var logs bytes.Buffer
			runner.Logger = slog.New(slog.NewTextHandler(&logs, nil))
			plan.Order = append(plan.Order, assembly.Step{Name: "", Required: false})

			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(logs.String()).To(gomega.ContainSubstring(`msg="record step content"`))
			gomega.Expect(logs.String()).To(gomega.ContainSubstring("not tracked"))
			gomega.Expect(res.Report.Names()).To(gomega.Equal([]string{"overview", "dependencies", "monitoring", "terraform"}))
			gomega.Expect(res.SaveFailures).To(gomega.HaveLen(1))
		})

		ginkgo.It("records failed saves without failing the run", func() {
			st.InjectError(store.OpSaveStep, errors.New("disk full"))
			st.InjectError(store.OpSaveMetadata, errors.New("disk full"))
			res, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(res.SaveFailures).To(gomega.HaveLen(5))
			for _, out := range res.SaveFailures {
				gomega.Expect(out.Status).To(gomega.Equal(investigation.StatusError))
			}
		})

		ginkgo.It("fails when the report cannot be written", func() {
			writer.err = errors.New("read-only file system")
			_, err := runner.Run(ctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.MatchError(writer.err))
			gomega.Expect(st.Calls(store.OpSaveMetadata)).To(gomega.Equal(0))
		})

		ginkgo.It("reports unresolved targets without deciding", func() {
			t := Target{Name: "broken", Err: errors.New("not a git repository")}
			res, err := runner.Run(ctx, t, plan)
			gomega.Expect(err).To(gomega.MatchError("not a git repository"))
			gomega.Expect(res.Repo).To(gomega.Equal("broken"))
			gomega.Expect(st.Calls(store.OpGetMetadata)).To(gomega.Equal(0))
		})

		ginkgo.It("stops on cancellation", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := runner.Run(cctx, target("svc", shaA), plan)
			gomega.Expect(err).To(gomega.MatchError(context.Canceled))
			gomega.Expect(producer.produced()).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("many repositories", func() {
		ginkgo.It("scans decisions in target order", func() {
			_, err := runner.Run(ctx, target("seen", shaA), plan)
			gomega.Expect(err).To(gomega.Succeed())

			targets := []Target{
				target("new", shaA),
				target("seen", shaA),
				{Name: "broken", Err: errors.New("no checkout")},
			}
			results := runner.Scan(ctx, targets, plan.Versions, 4)
			gomega.Expect(results).To(gomega.HaveLen(3))
			gomega.Expect(results[0].Repo).To(gomega.Equal("new"))
			gomega.Expect(results[0].Decision.NeedsInvestigation).To(gomega.BeTrue())
			gomega.Expect(results[1].Decision.NeedsInvestigation).To(gomega.BeFalse())
			gomega.Expect(results[2].Err).To(gomega.HaveOccurred())
		})

		ginkgo.It("runs every repository even when one fails", func() {
			targets := []Target{
				target("a", shaA),
				{Name: "broken", Err: errors.New("no checkout")},
				target("b", shaB),
			}
			results := runner.RunAll(ctx, targets, plan, 2)
			gomega.Expect(results).To(gomega.HaveLen(3))
			gomega.Expect(results[0].Err).NotTo(gomega.HaveOccurred())
			gomega.Expect(results[1].Err).To(gomega.HaveOccurred())
			gomega.Expect(results[2].Err).NotTo(gomega.HaveOccurred())
			gomega.Expect(writer.docs).To(gomega.HaveKey("a"))
			gomega.Expect(writer.docs).To(gomega.HaveKey("b"))
			gomega.Expect(producer.produced()).To(gomega.HaveLen(8))
		})
	})
})
