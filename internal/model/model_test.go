package model_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forgekeep/reposync/internal/model"
)

var _ = Describe("Remote", func() {
	DescribeTable("IsForgeManaged",
		func(kind model.RemoteKind, want bool) {
			r := model.Remote{Kind: kind}
			Expect(r.IsForgeManaged()).To(Equal(want))
		},
		Entry("owner_repo", model.RemoteOwnerRepo, true),
		Entry("https_github", model.RemoteHTTPSGithub, true),
		Entry("ssh_github", model.RemoteSSHGithub, true),
		Entry("file_url", model.RemoteFileURL, false),
		Entry("absolute_path", model.RemoteAbsolutePath, false),
		Entry("other_url", model.RemoteOtherURL, false),
	)

	It("canonicalizes forge-managed remotes as owner/repo", func() {
		r := model.Remote{Kind: model.RemoteOwnerRepo, Owner: "acme", Repo: "widgets"}
		Expect(r.Canonical()).To(Equal("acme/widgets"))
	})

	It("canonicalizes non-forge remotes as their path", func() {
		r := model.Remote{Kind: model.RemoteAbsolutePath, Path: "/srv/repos/widgets"}
		Expect(r.Canonical()).To(Equal("/srv/repos/widgets"))
	})
})

var _ = Describe("PlanError", func() {
	It("implements error with its message", func() {
		err := model.PlanError{Line: model.RawLine{Number: 3, Text: "acme/widgets"}, Message: "duplicate target"}
		Expect(err.Error()).To(Equal("duplicate target"))
	})
})

var _ = Describe("Tracking JSON", func() {
	It("round-trips with nil ahead/behind", func() {
		tr := model.Tracking{Upstream: "origin/main", Status: model.TrackingNone}
		data, err := json.Marshal(tr)
		Expect(err).NotTo(HaveOccurred())

		var decoded model.Tracking
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Status).To(Equal(model.TrackingNone))
		Expect(decoded.Ahead).To(BeNil())
	})

	It("round-trips with ahead/behind set", func() {
		ahead, behind := 2, 1
		tr := model.Tracking{Upstream: "origin/main", Status: model.TrackingDiverged, Ahead: &ahead, Behind: &behind}
		data, err := json.Marshal(tr)
		Expect(err).NotTo(HaveOccurred())

		var decoded model.Tracking
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(*decoded.Ahead).To(Equal(2))
		Expect(*decoded.Behind).To(Equal(1))
	})
})

var _ = Describe("Plan", func() {
	It("carries GlobalFlags alongside its actions", func() {
		plan := model.Plan{
			Flags: model.GlobalFlags{DefaultVisibility: model.VisibilityPrivate, ForceWorktree: true},
			Actions: []model.ResolvedAction{
				{Kind: model.ActionFullClone, TargetAbsolutePath: "/ws/widgets"},
			},
		}
		Expect(plan.Flags.DefaultVisibility).To(Equal(model.VisibilityPrivate))
		Expect(plan.Actions).To(HaveLen(1))
		Expect(plan.Actions[0].Kind).To(Equal(model.ActionFullClone))
	})
})
