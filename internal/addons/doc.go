// Package addons installs the system addons of a freshly provisioned cluster.
//
// Addons are installed in a fixed order by [InstallStep]: the cluster
// autoscaler, the Traefik ingress controller and the metrics server. Each
// addon has a build function producing its Helm values and an apply function
// installing the chart through a [ChartInstaller].
//
// All addons tolerate the taint of the dedicated system node group, see
// [SystemTolerations].
package addons
