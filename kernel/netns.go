//go:build linux

package kernel

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netns"

	"github.com/dshulyak/playground/network"
)

/**
 * Creates a named network namespace mounted under /var/run/netns.
 * @param namespace the namespace to create
 * @return error if any, nil otherwise.
 */
func NamespaceApply(namespace network.Namespace) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Creating a named namespace switches the calling thread into it,
	// so the current handle has to be saved and restored.
	current, err := netns.Get()
	if err != nil {
		return commandErr(err, "get current netns")
	}
	defer current.Close()

	created, err := netns.NewNamed(namespace.Name)
	if err != nil {
		return commandErr(err, "netns add %s", namespace.Name)
	}
	created.Close()

	if err := netns.Set(current); err != nil {
		return commandErr(err, "restore netns after creating %s", namespace.Name)
	}
	return nil
}

/**
 * Deletes a named network namespace. A missing namespace is returned as
 * an error; Teardown logs it as a warning and continues.
 * @param namespace the namespace to delete
 */
func NamespaceRevert(namespace network.Namespace) error {
	if err := netns.DeleteNamed(namespace.Name); err != nil {
		return commandErr(err, "netns del %s", namespace.Name)
	}
	return nil
}

/**
 * Runs fn with the calling goroutine switched into the named namespace.
 * The goroutine is pinned to its OS thread for the duration of the setns
 * window, and the host namespace is restored before returning.
 * @param name the namespace name
 * @param fn the function to run inside the namespace
 */
func InNamespace(name string, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	host, err := netns.Get()
	if err != nil {
		return commandErr(err, "get current netns")
	}
	defer host.Close()

	target, err := netns.GetFromName(name)
	if err != nil {
		return commandErr(err, "get netns %s", name)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return commandErr(err, "enter netns %s", name)
	}
	ferr := fn()
	if err := netns.Set(host); err != nil && ferr == nil {
		ferr = commandErr(err, "leave netns %s", name)
	}
	return ferr
}

/**
 * Opens a file-descriptor handle to the named namespace. The caller owns
 * the handle and must close it.
 */
func namespaceHandle(name string) (netns.NsHandle, error) {
	handle, err := netns.GetFromName(name)
	if err != nil {
		return handle, fmt.Errorf("get netns %s: %w", name, err)
	}
	return handle, nil
}
