package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	It("returns defaults when the file doesn't exist", func() {
		cfg, err := config.Load(filepath.Join(os.TempDir(), "certrain-nonexistent-run.yaml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Optimizer).To(Equal(config.OptimizerSGD))
	})

	It("round-trips through Save and Load", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "run.yaml")

		original := config.DefaultTraining()
		original.Seed = 42
		original.Epochs = 10
		Expect(original.Save(path)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Seed).To(Equal(uint64(42)))
		Expect(loaded.Epochs).To(Equal(uint32(10)))
	})
})

var _ = Describe("Validate", func() {
	It("accepts the default configuration", func() {
		Expect(config.DefaultTraining().Validate()).To(Succeed())
	})

	It("rejects fewer than two layers", func() {
		cfg := config.DefaultTraining()
		cfg.Layers = []uint32{2}
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a zero-sized layer", func() {
		cfg := config.DefaultTraining()
		cfg.Layers = []uint32{2, 0, 1}
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects an unknown optimizer", func() {
		cfg := config.DefaultTraining()
		cfg.Optimizer = "rmsprop"
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a zero batch size", func() {
		cfg := config.DefaultTraining()
		cfg.BatchSize = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("CanonicalBytes", func() {
	It("is stable across repeated calls on the same config", func() {
		cfg := config.DefaultTraining()
		Expect(cfg.CanonicalBytes()).To(Equal(cfg.CanonicalBytes()))
	})

	It("differs when a field changes", func() {
		a := config.DefaultTraining()
		b := config.DefaultTraining()
		b.Seed = a.Seed + 1
		Expect(a.CanonicalBytes()).NotTo(Equal(b.CanonicalBytes()))
	})
})
