package recipe

import (
	"fmt"
	"strings"
)

// EntryPoint is the WSGI-style callable the process supervisor loads.
const EntryPoint = "app:app"

// Render emits the Dockerfile for the recipe. The stage order is the
// validated order; rendering never reorders.
func (r *Recipe) Render() (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("render recipe: %w", err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# variant: %s (generated, do not edit)\n", r.Variant.Name))
	for _, st := range r.Stages {
		block, err := r.renderStage(st)
		if err != nil {
			return "", err
		}
		b.WriteString(block)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (r *Recipe) renderStage(st Stage) (string, error) {
	v := r.Variant
	switch st.Kind {
	case StageBase:
		return fmt.Sprintf("FROM %s\n\nENV PYTHONUNBUFFERED=1\nWORKDIR /app\n", v.BaseImage), nil
	case StageOSPackages:
		return renderAptInstall(v.OSPackages()), nil
	case StageRuntimeDeps:
		// Manifest copy and install come before the source copy so that
		// source-only changes never invalidate this layer.
		return "COPY requirements.txt .\n" +
			"RUN pip install --no-cache-dir -r requirements.txt\n", nil
	case StageEngineInstall:
		// Install-with-deps runs last among provisioning stages; it is
		// the step most likely to pull libraries the generic list omits.
		return "RUN python -m playwright install --with-deps chromium\n", nil
	case StageCopySource:
		return "COPY . .\n", nil
	case StagePrivilegeDrop:
		return "RUN useradd --create-home --shell /usr/sbin/nologin appuser \\\n" +
			"    && chown -R appuser:appuser /app\nUSER appuser\n", nil
	case StageExpose:
		// Informational only. Routing follows the resolved PORT, which
		// may legitimately differ.
		return fmt.Sprintf("EXPOSE %d\n", v.DefaultPort), nil
	case StageHealthcheck:
		return renderHealthcheck(v), nil
	case StageCommand:
		return renderCommand(v), nil
	default:
		return "", fmt.Errorf("variant %q: unknown stage %s", v.Name, st.Kind)
	}
}

func renderAptInstall(pkgs []string) string {
	var b strings.Builder
	b.WriteString("RUN apt-get update \\\n")
	b.WriteString("    && apt-get install -y --no-install-recommends \\\n")
	for _, p := range pkgs {
		b.WriteString("        " + p + " \\\n")
	}
	// Cache purge keeps the layer minimal; a resolution failure anywhere
	// in the chain fails the whole RUN and aborts the build.
	b.WriteString("    && rm -rf /var/lib/apt/lists/*\n")
	return b.String()
}

func renderHealthcheck(v Variant) string {
	h := v.Health
	// The probe target resolves $PORT at probe time. Baking a literal
	// here breaks platforms that assign the port at container start.
	return fmt.Sprintf(
		"HEALTHCHECK --interval=%s --timeout=%s --start-period=%s --retries=%d \\\n"+
			"    CMD curl -fsS \"http://127.0.0.1:${PORT:-%d}/health\" || exit 1\n",
		h.Interval, h.Timeout, h.StartPeriod, h.Retries, v.DefaultPort)
}

func renderCommand(v Variant) string {
	// Thread-based workers: browser automation blocks on external
	// processes, so threads keep one slow call from starving a worker.
	return fmt.Sprintf(
		"CMD gunicorn --bind 0.0.0.0:${PORT:-%d} --workers %d --worker-class gthread --threads %d %s\n",
		v.DefaultPort, v.Workers, v.WorkerThreads, EntryPoint)
}
