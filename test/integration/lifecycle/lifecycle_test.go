// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

//go:build integration

package lifecycle_test

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/networkeyes/lifecycle/internal/lifecycle"
	"github.com/networkeyes/lifecycle/internal/plugin"
)

var _ = Describe("Plugin lifecycle on PostgreSQL", func() {
	var (
		baseDir string
		userID  string
		mgr     *lifecycle.Manager
	)

	BeforeEach(func() {
		var err error
		baseDir, err = os.MkdirTemp("", "networkeyes-plugins-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, baseDir)

		userID = "user" + ulid.Make().String()
		mgr, _ = env.manager(baseDir)
	})

	pluginDir := func() string {
		return filepath.Join(baseDir, userID, "BrainDriveNetwork")
	}

	Describe("Install", func() {
		It("creates the records and the directory", func() {
			res := mgr.Install(env.ctx, userID, env.session())

			Expect(res.Success).To(BeTrue(), res.Error)
			Expect(res.PluginID).To(Equal(plugin.PluginID(userID, "BrainDriveNetwork")))
			Expect(res.ModulesCreated).To(HaveLen(1))
			Expect(env.countRows("plugin", userID)).To(Equal(1))
			Expect(env.countRows("module", userID)).To(Equal(1))
			Expect(filepath.Join(pluginDir(), plugin.ManifestFile)).To(BeARegularFile())
		})

		It("reports a conflict on the second install without new rows", func() {
			Expect(mgr.Install(env.ctx, userID, env.session()).Success).To(BeTrue())

			res := mgr.Install(env.ctx, userID, env.session())

			Expect(res.Success).To(BeFalse())
			Expect(res.ErrorKind).To(Equal(lifecycle.KindConflict))
			Expect(env.countRows("plugin", userID)).To(Equal(1))
			Expect(env.countRows("module", userID)).To(Equal(1))
			Expect(pluginDir()).To(BeADirectory())
		})

		It("lets exactly one of several concurrent installs win", func() {
			const attempts = 4
			results := make([]lifecycle.InstallResult, attempts)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					s := env.session()
					<-start
					results[i] = mgr.Install(env.ctx, userID, s)
				}()
			}
			close(start)
			wg.Wait()

			var successes, conflicts int
			for _, res := range results {
				switch {
				case res.Success:
					successes++
				case res.ErrorKind == lifecycle.KindConflict:
					conflicts++
					Expect(res.PluginID).To(Equal(plugin.PluginID(userID, "BrainDriveNetwork")))
				default:
					Fail("unexpected result: " + res.Error)
				}
			}
			Expect(successes).To(Equal(1))
			Expect(conflicts).To(Equal(attempts - 1))
			Expect(env.countRows("plugin", userID)).To(Equal(1))
			Expect(env.countRows("module", userID)).To(Equal(1))
			Expect(mgr.Status(env.ctx, userID, env.session()).Status).To(Equal(lifecycle.StatusHealthy))
		})
	})

	Describe("Delete", func() {
		It("removes everything an install created", func() {
			Expect(mgr.Install(env.ctx, userID, env.session()).Success).To(BeTrue())

			res := mgr.Delete(env.ctx, userID, env.session())

			Expect(res.Success).To(BeTrue(), res.Error)
			Expect(res.DeletedModules).To(Equal(int64(1)))
			Expect(env.countRows("plugin", userID)).To(BeZero())
			Expect(env.countRows("module", userID)).To(BeZero())
			Expect(pluginDir()).NotTo(BeADirectory())
		})

		It("reports not found for a user without the plugin", func() {
			res := mgr.Delete(env.ctx, userID, env.session())

			Expect(res.Success).To(BeFalse())
			Expect(res.ErrorKind).To(Equal(lifecycle.KindNotFound))
			Expect(filepath.Join(baseDir, userID)).NotTo(BeADirectory())
		})
	})

	Describe("Status", func() {
		It("follows the installation through its states", func() {
			Expect(mgr.Status(env.ctx, userID, env.session()).Status).To(Equal(lifecycle.StatusNotInstalled))

			Expect(mgr.Install(env.ctx, userID, env.session()).Success).To(BeTrue())
			Expect(mgr.Status(env.ctx, userID, env.session()).Status).To(Equal(lifecycle.StatusHealthy))

			_, err := env.pool.Exec(env.ctx, "DELETE FROM module WHERE user_id = $1", userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.Status(env.ctx, userID, env.session()).Status).To(Equal(lifecycle.StatusModulesCorrupted))

			Expect(os.RemoveAll(pluginDir())).To(Succeed())
			Expect(mgr.Status(env.ctx, userID, env.session()).Status).To(Equal(lifecycle.StatusFilesMissing))
		})
	})

	Describe("Update", func() {
		It("refreshes the files of an installed plugin", func() {
			Expect(mgr.Install(env.ctx, userID, env.session()).Success).To(BeTrue())
			stale := filepath.Join(pluginDir(), "dist", "stale.js")
			Expect(os.WriteFile(stale, []byte("old"), 0o644)).To(Succeed())

			res := mgr.Update(env.ctx, userID, env.session())

			Expect(res.Success).To(BeTrue(), res.Error)
			Expect(stale).NotTo(BeAnExistingFile())
			Expect(mgr.Status(env.ctx, userID, env.session()).Status).To(Equal(lifecycle.StatusHealthy))
		})
	})
})
