package jobcontrol

// Hooks into unexported state changes for tests in package jobcontrol_test.

func (j *Job) Transition(to JobState) JobState {
	return j.transition(to)
}

func (j *Job) Terminate() error {
	return j.terminate()
}

func (m *Manager) SetForeground(job *Job) {
	m.setForeground(job)
}
